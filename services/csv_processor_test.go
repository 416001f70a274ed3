package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"xrayexport/models"
)

// fakeLinks はキーごとのリンク文字列を返し、呼び出しを記録します
type fakeLinks struct {
	links map[string]string
	calls []string
}

func (f *fakeLinks) ResolveLinks(_ context.Context, key string) string {
	f.calls = append(f.calls, key)
	return f.links[key]
}

func TestFlatten_MultiStepBlanksContinuationRows(t *testing.T) {
	links := &fakeLinks{links: map[string]string{"T-1": "REQ-1;REQ-2"}}
	tests := []models.TestRecord{{
		Key:        "T-1",
		Summary:    "Login works",
		TestType:   "Manual",
		Priority:   "High",
		FolderPath: "/Regression/Login",
		Steps: []models.Step{
			{Action: "open", Data: "url", Result: "page"},
			{Action: "submit", Data: "creds", Result: "home"},
			{Action: "logout", Data: "", Result: "login page"},
		},
	}}

	rows := NewCSVProcessor(links).Flatten(context.Background(), tests, 5)
	require.Len(t, rows, 3)

	require.Equal(t, models.CSVRow{
		TestRepo:     "Regression/Login",
		IssueID:      5,
		IssueKey:     "T-1",
		TestType:     "Manual",
		TestSummary:  "Login works",
		TestPriority: "High",
		Action:       "open",
		Data:         "url",
		Result:       "page",
		Links:        "REQ-1;REQ-2",
	}, rows[0])

	for _, row := range rows[1:] {
		require.Equal(t, 5, row.IssueID)
		require.Equal(t, "Manual", row.TestType)
		require.Empty(t, row.TestRepo)
		require.Empty(t, row.IssueKey)
		require.Empty(t, row.TestSummary)
		require.Empty(t, row.TestPriority)
		require.Empty(t, row.Links)
	}
	require.Equal(t, "submit", rows[1].Action)
	require.Equal(t, "logout", rows[2].Action)
	require.Equal(t, "login page", rows[2].Result)
	require.Equal(t, []string{"T-1"}, links.calls)
}

func TestFlatten_NoStepsEmitsSingleRow(t *testing.T) {
	links := &fakeLinks{links: map[string]string{"T-2": "BUG-9"}}
	tests := []models.TestRecord{{Key: "T-2", Summary: "Empty", TestType: "Generic"}}

	rows := NewCSVProcessor(links).Flatten(context.Background(), tests, 1)
	require.Len(t, rows, 1)
	require.Equal(t, "T-2", rows[0].IssueKey)
	require.Equal(t, "BUG-9", rows[0].Links)
	require.Empty(t, rows[0].Action)
	require.Empty(t, rows[0].Data)
	require.Empty(t, rows[0].Result)
	require.Empty(t, rows[0].TestRepo)
	require.Empty(t, rows[0].TestPriority)
}

func TestFlatten_IssueIDsPerRecord(t *testing.T) {
	tests := []models.TestRecord{
		{Key: "T-1", Steps: []models.Step{{Action: "a"}, {Action: "b"}}},
		{Key: "T-2"},
	}

	rows := NewCSVProcessor(nil).Flatten(context.Background(), tests, 1)
	require.Len(t, rows, 3)
	require.Equal(t, []int{1, 1, 2}, []int{rows[0].IssueID, rows[1].IssueID, rows[2].IssueID})
	require.Equal(t, "T-1", rows[0].IssueKey)
	require.Empty(t, rows[1].IssueKey)
	require.Equal(t, "T-2", rows[2].IssueKey)
}

func TestFlatten_FolderPath(t *testing.T) {
	tests := []models.TestRecord{
		{Key: "T-1", FolderPath: "/Regression/Login"},
		{Key: "T-2"},
		{Key: "T-3", FolderPath: "//Root"},
	}

	rows := NewCSVProcessor(nil).Flatten(context.Background(), tests, 1)
	require.Equal(t, "Regression/Login", rows[0].TestRepo)
	require.Equal(t, "", rows[1].TestRepo)
	require.Equal(t, "Root", rows[2].TestRepo)
}

func genTestRecords(t *rapid.T) []models.TestRecord {
	n := rapid.IntRange(1, 20).Draw(t, "records")
	tests := make([]models.TestRecord, n)
	for i := range tests {
		steps := rapid.IntRange(0, 6).Draw(t, "steps")
		tests[i] = models.TestRecord{
			Key:      rapid.StringMatching(`[A-Z]{2,4}-[1-9][0-9]{0,3}`).Draw(t, "key"),
			Summary:  rapid.String().Draw(t, "summary"),
			TestType: rapid.SampledFrom([]string{"Manual", "Generic", "Cucumber"}).Draw(t, "type"),
			Steps:    make([]models.Step, steps),
		}
		for s := range tests[i].Steps {
			tests[i].Steps[s] = models.Step{Action: rapid.String().Draw(t, "action")}
		}
	}
	return tests
}

func TestFlatten_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tests := genTestRecords(t)
		start := rapid.IntRange(1, 1000).Draw(t, "start")

		rows := NewCSVProcessor(nil).Flatten(context.Background(), tests, start)

		allEmpty := true
		expected := 0
		for _, test := range tests {
			if len(test.Steps) > 0 {
				allEmpty = false
				expected += len(test.Steps)
			} else {
				expected++
			}
		}
		if len(rows) < len(tests) {
			t.Fatalf("row count %d < record count %d", len(rows), len(tests))
		}
		if (len(rows) == len(tests)) != allEmpty {
			t.Fatalf("row count equals record count iff every record has no steps")
		}
		if len(rows) != expected {
			t.Fatalf("expected %d rows, got %d", expected, len(rows))
		}

		idx := 0
		for i, test := range tests {
			block := len(test.Steps)
			if block == 0 {
				block = 1
			}
			for r := 0; r < block; r++ {
				row := rows[idx]
				if row.IssueID != start+i {
					t.Fatalf("row %d: issue id %d, want %d", idx, row.IssueID, start+i)
				}
				if row.TestType != test.TestType {
					t.Fatalf("row %d: test type not repeated", idx)
				}
				if r == 0 && row.IssueKey != test.Key {
					t.Fatalf("row %d: first row must carry key", idx)
				}
				if r > 0 && (row.IssueKey != "" || row.TestRepo != "" || row.TestSummary != "" ||
					row.TestPriority != "" || row.Links != "") {
					t.Fatalf("row %d: continuation row must blank parent fields", idx)
				}
				if row.Description != "" || row.UnstructuredDefinition != "" {
					t.Fatalf("row %d: reserved columns must be empty", idx)
				}
				idx++
			}
		}
	})
}

func TestReadKeys(t *testing.T) {
	input := "\ufeffT-1,ignored\n\n  T-2  \n\"T-3\",x,y\n,only-second\nT-4\n"

	keys, err := ReadKeys(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"T-1", "T-2", "T-3", "T-4"}, keys)
}

func TestReadKeys_HeaderIsTreatedAsKey(t *testing.T) {
	keys, err := ReadKeys(strings.NewReader("Issue key\nT-1\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"Issue key", "T-1"}, keys)
}

func TestReadKeysCSV_MissingFile(t *testing.T) {
	_, err := NewCSVProcessor(nil).ReadKeysCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestWriteRows_HeaderAndBOM(t *testing.T) {
	var buf bytes.Buffer
	rows := []models.CSVRow{
		{TestRepo: "Regression", IssueID: 1, IssueKey: "T-1", TestType: "Manual", Action: "type \"a,b\""},
	}

	require.NoError(t, WriteRows(&buf, rows))
	require.True(t, strings.HasPrefix(buf.String(), "\ufeff"))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, models.CSVHeader, records[0])
	require.Len(t, records[1], 12)
	require.Equal(t, "1", records[1][1])
	require.Equal(t, `type "a,b"`, records[1][6])
}

func TestWriteTestCSV_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "T-1.csv")

	err := NewCSVProcessor(nil).WriteTestCSV(path, []models.CSVRow{{IssueID: 1, IssueKey: "T-1"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Test Repo,Issue Id,Issue key,Test type")
	require.Contains(t, string(data), ",1,T-1,")
}
