package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrayexport/models"
)

// newFakeAPI はXrayとJIRAの両方のエンドポイントを持つテストサーバーを起動します
func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"token-1"`))
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"getTests":{"results":[
			{"jira":{"key":"T-1","summary":"Login","priority":{"name":"High"}},
			 "testType":{"name":"Manual"},"folder":{"path":"/Regression/Login"},
			 "steps":[{"action":"open","data":"url","result":"page"},{"action":"submit","data":"","result":"home"}]},
			{"jira":{"key":"T-2","summary":"Logout","priority":null},
			 "testType":{"name":"Generic"},"folder":null,"steps":[]}
		]}}}`))
	})
	mux.HandleFunc("/rest/api/2/issue/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/")
		links := map[string]interface{}{"fields": map[string]interface{}{}}
		if key == "T-1" {
			links["fields"] = map[string]interface{}{
				"issuelinks": []map[string]interface{}{{"outwardIssue": map[string]string{"key": "REQ-1"}}},
			}
		}
		_ = json.NewEncoder(w).Encode(links)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	path := filepath.Join(dir, "config.ini")
	body := fmt.Sprintf(`[XRAY]
CLIENT_ID = id
CLIENT_SECRET = secret
BASE_URL = %s

[JIRA]
DOMAIN = %s
EMAIL = qa@acme.test
API_TOKEN = jira-token
`, baseURL, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := executeRoot(cmd)
	return out.String(), err
}

func TestExport_MergeEndToEnd(t *testing.T) {
	srv := newFakeAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, srv.URL)
	outDir := filepath.Join(dir, "out")

	input := filepath.Join(dir, "keys.csv")
	require.NoError(t, os.WriteFile(input, []byte("T-1\nT-2\n"), 0o644))

	out, err := execute(t, "export", "--config", cfgPath, "--input", input, "--output-dir", outDir)
	require.NoError(t, err)
	require.Contains(t, out, "Merged_T-1.csv")

	data, err := os.ReadFile(filepath.Join(outDir, "Merged_T-1.csv"))
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4)
	require.Equal(t, models.CSVHeader, records[0])
	require.Equal(t, []string{"1", "1", "2"}, []string{records[1][1], records[2][1], records[3][1]})
	require.Equal(t, "Regression/Login", records[1][0])
	require.Equal(t, "REQ-1", records[1][9])
	require.Equal(t, "", records[2][2])
	require.Equal(t, "T-2", records[3][2])
	require.Equal(t, "", records[3][9])
}

func TestExport_SingleKeyWritesOwnFile(t *testing.T) {
	srv := newFakeAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, srv.URL)

	_, err := execute(t, "export", "--config", cfgPath, "--key", "T-1", "--output-dir", dir)
	require.NoError(t, err)

	// サーバーは2件返すため、単体エクスポートでもテストごとのファイルになる
	require.FileExists(t, filepath.Join(dir, "T-1.csv"))
	require.FileExists(t, filepath.Join(dir, "T-2.csv"))
}

func TestExport_EmptyInputFails(t *testing.T) {
	srv := newFakeAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, srv.URL)

	out, err := execute(t, "export", "--config", cfgPath, "--key", " ", "--output-dir", dir)
	require.Error(t, err)
	require.Contains(t, out, "キーを入力するか")
}

func TestExport_MissingConfigWritesTemplate(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.ini")

	out, err := execute(t, "export", "--config", cfgPath, "--key", "T-1")
	require.Error(t, err)
	require.Contains(t, out, "config.ini")
	require.FileExists(t, cfgPath)
}

func TestInit_WritesTemplateOnce(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.ini")

	out, err := execute(t, "init", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, cfgPath)
	require.FileExists(t, cfgPath)

	out, err = execute(t, "init", "--config", cfgPath)
	require.Error(t, err)
	require.Contains(t, out, "設定ファイルはすでに存在します")
}

func TestExport_MissingInputFileReportsError(t *testing.T) {
	srv := newFakeAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, srv.URL)
	missing := filepath.Join(dir, "no-such-keys.csv")

	out, err := execute(t, "export", "--config", cfgPath, "--input", missing, "--output-dir", dir)
	require.Error(t, err)
	require.Contains(t, out, "キー一覧の読み込みに失敗しました")
	require.Contains(t, out, "no-such-keys.csv")
}

func TestExport_FailedResultIsReportedOnce(t *testing.T) {
	srv := newFakeAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, srv.URL)

	out, err := execute(t, "export", "--config", cfgPath, "--key", " ", "--output-dir", dir)
	require.Error(t, err)
	require.Equal(t, 1, strings.Count(out, "キーが指定されていません"))
}

func TestRenderResult(t *testing.T) {
	got := renderResult(models.ExportResult{
		Outcome:  models.OutcomeSuccess,
		Severity: models.SeveritySuccess,
		Message:  "2 件のファイルを出力しました",
		Files:    []string{"/tmp/T-1.csv", "/tmp/T-2.csv"},
		Records:  2,
		Rows:     3,
	})
	require.Contains(t, got, "2 件のファイルを出力しました")
	require.Contains(t, got, "テスト 2 件 / 3 行")
	require.Contains(t, got, "/tmp/T-2.csv")
}
