package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"xrayexport/config"
	"xrayexport/models"
	"xrayexport/utils"
)

// PageSize はGraphQLの1ページあたりの取得件数です
const PageSize = 100

var (
	// ErrAuthentication はXrayの認証に失敗したことを示します
	ErrAuthentication = errors.New("Xray認証失敗")
	// ErrPaginationAborted はページングが途中で中断されたことを示します。
	// 中断までに取得したテストは結果として返されます。
	ErrPaginationAborted = errors.New("テスト取得が途中で中断されました")
)

const getTestsQuery = `
query($jql: String, $start: Int!, $limit: Int!) {
	getTests(jql: $jql, start: $start, limit: $limit) {
		results {
			jira(fields: ["key", "summary", "priority"])
			testType { name }
			folder { path }
			steps { action data result }
		}
	}
}`

// XrayClient はXray Cloud APIとのやり取りを処理します
type XrayClient struct {
	config *config.Config
	client *http.Client
}

// NewXrayClient は新しいXrayクライアントを作成します
func NewXrayClient(cfg *config.Config) *XrayClient {
	return &XrayClient{
		config: cfg,
		client: &http.Client{},
	}
}

// Authenticate はクライアントID/シークレットをBearerトークンに交換します
func (x *XrayClient) Authenticate(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/authenticate", x.config.XrayBaseURL)

	payload := map[string]string{
		"client_id":     x.config.XrayClientID,
		"client_secret": x.config.XrayClientSecret,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "JSONエンコードエラー")
	}

	ctx, cancel := context.WithTimeout(ctx, x.config.AuthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", errors.Wrap(ErrAuthentication, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(ErrAuthentication, "リクエスト送信エラー: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(ErrAuthentication, "レスポンス読み込みエラー: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(ErrAuthentication, "ステータス %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// レスポンスは "token" のようにダブルクォートで囲まれた文字列
	token := strings.ReplaceAll(strings.TrimSpace(string(body)), `"`, "")
	if token == "" {
		return "", errors.Wrap(ErrAuthentication, "トークンが空です")
	}

	return token, nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// errors キーが存在する場合は空配列でもエラー扱いにするため、ポインタで受けます
type getTestsResponse struct {
	Data *struct {
		GetTests *struct {
			Results []testResult `json:"results"`
		} `json:"getTests"`
	} `json:"data"`
	Errors *[]graphQLError `json:"errors"`
}

type testResult struct {
	Jira struct {
		Key      string `json:"key"`
		Summary  string `json:"summary"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
	} `json:"jira"`
	TestType *struct {
		Name string `json:"name"`
	} `json:"testType"`
	Folder *struct {
		Path string `json:"path"`
	} `json:"folder"`
	Steps []struct {
		Action string `json:"action"`
		Data   string `json:"data"`
		Result string `json:"result"`
	} `json:"steps"`
}

func (r testResult) toRecord() models.TestRecord {
	record := models.TestRecord{
		Key:     r.Jira.Key,
		Summary: r.Jira.Summary,
	}
	if r.Jira.Priority != nil {
		record.Priority = r.Jira.Priority.Name
	}
	if r.TestType != nil {
		record.TestType = r.TestType.Name
	}
	if r.Folder != nil {
		record.FolderPath = r.Folder.Path
	}

	record.Steps = make([]models.Step, 0, len(r.Steps))
	for _, s := range r.Steps {
		record.Steps = append(record.Steps, models.Step{
			Action: s.Action,
			Data:   s.Data,
			Result: s.Result,
		})
	}
	return record
}

// BuildJQL はキー一覧から key IN (...) 形式のJQLを組み立てます
func BuildJQL(keys []string) string {
	quoted := make([]string, 0, len(keys))
	for _, k := range keys {
		quoted = append(quoted, fmt.Sprintf("%q", k))
	}
	return fmt.Sprintf("key IN (%s)", strings.Join(quoted, ", "))
}

// FetchTests はキーに一致するテストをすべて取得します。
// 途中のページでエラーが発生した場合は、それまでに取得したテストと
// ErrPaginationAborted をラップしたエラーを返します。
func (x *XrayClient) FetchTests(ctx context.Context, token string, keys []string) ([]models.TestRecord, error) {
	jql := BuildJQL(keys)
	utils.LogDebug("JQL: %s", jql)

	var all []models.TestRecord
	start := 0

	for {
		page, err := x.fetchPage(ctx, token, jql, start)
		if err != nil {
			utils.LogWarn("テスト取得中断 (start=%d, 取得済み %d 件): %v", start, len(all), err)
			return all, errors.Wrapf(ErrPaginationAborted, "start=%d: %v", start, err)
		}
		if len(page) == 0 {
			break
		}

		for _, r := range page {
			all = append(all, r.toRecord())
		}

		// 取得件数が要求件数より少なければ次のページはない
		if len(page) < PageSize {
			break
		}
		start += PageSize
	}

	utils.LogInfo("テストを取得しました: %d 件", len(all))
	return all, nil
}

func (x *XrayClient) fetchPage(ctx context.Context, token, jql string, start int) ([]testResult, error) {
	url := fmt.Sprintf("%s/graphql", x.config.XrayBaseURL)

	payloadBytes, err := json.Marshal(graphQLRequest{
		Query: getTestsQuery,
		Variables: map[string]interface{}{
			"jql":   jql,
			"start": start,
			"limit": PageSize,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "JSONエンコードエラー")
	}

	ctx, cancel := context.WithTimeout(ctx, x.config.GraphQLTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, errors.Wrap(err, "リクエスト作成エラー")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "リクエスト送信エラー")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("GraphQL呼び出し失敗 (ステータス %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result getTestsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "レスポンス解析エラー")
	}

	if result.Errors != nil {
		messages := make([]string, 0, len(*result.Errors))
		for _, e := range *result.Errors {
			messages = append(messages, e.Message)
		}
		return nil, errors.Errorf("GraphQLエラー: %s", strings.Join(messages, "; "))
	}
	if result.Data == nil || result.Data.GetTests == nil {
		return nil, errors.New("レスポンスに getTests がありません")
	}

	return result.Data.GetTests.Results, nil
}
