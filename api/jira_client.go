package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"xrayexport/config"
	"xrayexport/utils"
)

// JiraClient はJIRA APIとのやり取りを処理します
type JiraClient struct {
	config *config.Config
	client *http.Client
}

// NewJiraClient は新しいJIRAクライアントを作成します
func NewJiraClient(cfg *config.Config) *JiraClient {
	return &JiraClient{
		config: cfg,
		client: &http.Client{},
	}
}

type issueLinkRef struct {
	Key string `json:"key"`
}

type issueLinksResponse struct {
	Fields struct {
		IssueLinks []struct {
			OutwardIssue *issueLinkRef `json:"outwardIssue"`
			InwardIssue  *issueLinkRef `json:"inwardIssue"`
		} `json:"issuelinks"`
	} `json:"fields"`
}

// CheckAuth はJIRA認証をチェックします
func (j *JiraClient) CheckAuth(ctx context.Context) error {
	url := fmt.Sprintf("%s/rest/api/2/myself", j.config.JiraBaseURL())

	ctx, cancel := context.WithTimeout(ctx, j.config.JiraTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "リクエスト作成エラー")
	}

	req.SetBasicAuth(j.config.JiraEmail, j.config.JiraAPIToken)

	resp, err := j.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "リクエスト送信エラー")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("認証失敗: %s", string(body))
	}

	return nil
}

// GetIssueLinks はイシューにリンクされたイシューのキーを取得します。
// outwardIssue と inwardIssue の両方がある場合は outwardIssue を優先します。
func (j *JiraClient) GetIssueLinks(ctx context.Context, issueKey string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s", j.config.JiraBaseURL(), url.PathEscape(issueKey))

	ctx, cancel := context.WithTimeout(ctx, j.config.JiraTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "リクエスト作成エラー")
	}

	req.SetBasicAuth(j.config.JiraEmail, j.config.JiraAPIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "リクエスト送信エラー")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("イシュー取得失敗 (ステータス %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result issueLinksResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "レスポンス解析エラー")
	}

	keys := make([]string, 0, len(result.Fields.IssueLinks))
	for _, link := range result.Fields.IssueLinks {
		switch {
		case link.OutwardIssue != nil && link.OutwardIssue.Key != "":
			keys = append(keys, link.OutwardIssue.Key)
		case link.InwardIssue != nil && link.InwardIssue.Key != "":
			keys = append(keys, link.InwardIssue.Key)
		}
	}

	return keys, nil
}

// ResolveLinks はリンク先キーをセミコロン区切りで返します。
// 取得に失敗した場合は空文字を返します（リンク情報はベストエフォート）。
func (j *JiraClient) ResolveLinks(ctx context.Context, issueKey string) string {
	keys, err := j.GetIssueLinks(ctx, issueKey)
	if err != nil {
		utils.LogWarn("イシュー %s: リンク取得に失敗しました: %v", issueKey, err)
		return ""
	}
	return strings.Join(keys, ";")
}
