package models

import "strconv"

// TestRecord はXrayから取得したテストケースを表します
type TestRecord struct {
	Key        string // JIRA Key (PROJECT-123 形式)
	Summary    string
	TestType   string
	Priority   string // 未設定の場合は空
	FolderPath string // テストリポジトリのフォルダパス（未設定の場合は空）
	Steps      []Step
}

// Step はテストケースの手順を表します
type Step struct {
	Action string
	Data   string
	Result string
}

// CSVHeader は出力CSVのヘッダー行です
var CSVHeader = []string{
	"Test Repo", "Issue Id", "Issue key", "Test type", "Test Summary", "Test Priority",
	"Action", "Data", "Result", "Links", "Description", "Unstructured definition",
}

// CSVRow は出力CSVの1行を表します
type CSVRow struct {
	TestRepo               string
	IssueID                int
	IssueKey               string
	TestType               string
	TestSummary            string
	TestPriority           string
	Action                 string
	Data                   string
	Result                 string
	Links                  string
	Description            string
	UnstructuredDefinition string
}

// Record はヘッダー順に並べたフィールドを返します
func (r CSVRow) Record() []string {
	return []string{
		r.TestRepo,
		strconv.Itoa(r.IssueID),
		r.IssueKey,
		r.TestType,
		r.TestSummary,
		r.TestPriority,
		r.Action,
		r.Data,
		r.Result,
		r.Links,
		r.Description,
		r.UnstructuredDefinition,
	}
}
