package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"xrayexport/api"
	"xrayexport/config"
	"xrayexport/models"
	"xrayexport/utils"
)

var (
	// ErrEmptyInput は有効なキーが1つも指定されていないことを示します
	ErrEmptyInput = errors.New("キーが指定されていません")
	// ErrExportInProgress は別のエクスポートが実行中であることを示します
	ErrExportInProgress = errors.New("エクスポートはすでに実行中です")
)

// リンク取得結果のメモ化期間（エクスポート1回分より十分長い）
const linkCacheTTL = time.Hour

// TokenProvider はXrayのBearerトークンを取得します
type TokenProvider interface {
	Authenticate(ctx context.Context) (string, error)
}

// TestFetcher はキーに一致するテストを取得します
type TestFetcher interface {
	FetchTests(ctx context.Context, token string, keys []string) ([]models.TestRecord, error)
}

// Exporter はXrayのテストをCSVにエクスポートする処理の流れを制御します
type Exporter struct {
	config  *config.Config
	tokens  TokenProvider
	fetcher TestFetcher
	links   LinkResolver

	// OnStateChange が設定されている場合、状態遷移のたびに呼ばれます
	OnStateChange func(runID string, state models.ExportState)

	running atomic.Bool
}

// NewExporter は新しいエクスポーターを作成します
func NewExporter(cfg *config.Config, tokens TokenProvider, fetcher TestFetcher, links LinkResolver) *Exporter {
	return &Exporter{
		config:  cfg,
		tokens:  tokens,
		fetcher: fetcher,
		links:   links,
	}
}

// NewDefaultExporter は設定からXray/JIRAクライアントを組み立てます
func NewDefaultExporter(cfg *config.Config) *Exporter {
	xray := api.NewXrayClient(cfg)
	return NewExporter(cfg, xray, xray, api.NewJiraClient(cfg))
}

// Run はエクスポートを同期的に実行します。
// 失敗はすべて ExportResult に変換され、エラーとして返されることはありません。
func (e *Exporter) Run(ctx context.Context, req models.ExportRequest) models.ExportResult {
	return e.run(ctx, uuid.NewString(), req)
}

func (e *Exporter) run(ctx context.Context, runID string, req models.ExportRequest) models.ExportResult {
	result := models.ExportResult{RunID: runID}
	startTime := time.Now()
	defer utils.TrackTime(startTime, fmt.Sprintf("エクスポート [%s]", result.RunID))

	e.transition(&result, models.StateValidating)
	keys := cleanKeys(req.Keys)
	if len(keys) == 0 {
		return e.fail(result, models.OutcomeEmptyInput, ErrEmptyInput,
			"キーを入力するか、キー一覧のCSVを指定してください")
	}
	utils.LogInfo("[%s] エクスポートを開始します: %d 件のキー (merge=%t)", result.RunID, len(keys), req.Merge)

	e.transition(&result, models.StateAuthenticating)
	token, err := e.tokens.Authenticate(ctx)
	if err != nil {
		if !errors.Is(err, api.ErrAuthentication) {
			err = errors.Wrap(api.ErrAuthentication, err.Error())
		}
		return e.fail(result, models.OutcomeAuthFailed, err,
			"認証失敗：config.ini のXray設定を確認してください")
	}

	e.transition(&result, models.StateFetching)
	tests, err := e.fetcher.FetchTests(ctx, token, keys)
	if err != nil {
		// 中断までに取得できたテストは出力する
		result.Partial = true
		utils.LogWarn("[%s] テスト取得が途中で中断されました (取得済み %d 件): %v", result.RunID, len(tests), err)
	}
	result.Records = len(tests)

	if len(tests) == 0 {
		result.Outcome = models.OutcomeNoData
		result.Severity = models.SeverityWarning
		result.Message = "データが見つかりません：キーが正しいか確認してください"
		result.Err = err
		e.transition(&result, models.StateDone)
		return result
	}

	e.transition(&result, models.StateWriting)
	if err := e.write(ctx, &result, keys, tests, req.Merge); err != nil {
		return e.fail(result, models.OutcomeWriteFailed, err, fmt.Sprintf("エラー: %v", err))
	}

	result.Outcome = models.OutcomeSuccess
	result.Severity = models.SeveritySuccess
	if req.Merge {
		result.Message = fmt.Sprintf("保存しました: %s", result.Files[0])
	} else {
		result.Message = fmt.Sprintf("%d 件のファイルを出力しました: %s", len(result.Files), e.config.OutputDir)
	}
	if result.Partial {
		result.Severity = models.SeverityWarning
		result.Message += "（取得が途中で中断されたため一部のみ）"
	}
	e.transition(&result, models.StateDone)
	return result
}

func (e *Exporter) write(ctx context.Context, result *models.ExportResult, keys []string, tests []models.TestRecord, merge bool) error {
	var links LinkResolver
	if e.links != nil {
		links = newLinkCache(e.links, linkCacheTTL)
	}
	csvProc := NewCSVProcessor(links)

	if merge {
		rows := csvProc.Flatten(ctx, tests, 1)
		path := filepath.Join(e.config.OutputDir, fmt.Sprintf("Merged_%s.csv", fileNameFor(keys[0])))
		if err := csvProc.WriteTestCSV(path, rows); err != nil {
			return err
		}
		result.Rows = len(rows)
		result.Files = append(result.Files, path)
		return nil
	}

	for _, test := range tests {
		rows := csvProc.Flatten(ctx, []models.TestRecord{test}, 1)
		path := filepath.Join(e.config.OutputDir, fmt.Sprintf("%s.csv", fileNameFor(test.Key)))
		if err := csvProc.WriteTestCSV(path, rows); err != nil {
			return errors.Wrapf(err, "テスト %s", test.Key)
		}
		result.Rows += len(rows)
		result.Files = append(result.Files, path)
	}
	return nil
}

func (e *Exporter) fail(result models.ExportResult, outcome models.Outcome, err error, message string) models.ExportResult {
	result.Outcome = outcome
	result.Severity = models.SeverityError
	result.Message = message
	result.Err = err
	utils.LogError("[%s] エクスポート失敗: %v", result.RunID, err)
	e.transition(&result, models.StateFailed)
	return result
}

func (e *Exporter) transition(result *models.ExportResult, state models.ExportState) {
	result.State = state
	utils.LogDebug("[%s] 状態: %s", result.RunID, state)
	if e.OnStateChange != nil {
		e.OnStateChange(result.RunID, state)
	}
}

// Task はバックグラウンドで実行中のエクスポートです
type Task struct {
	done   chan struct{}
	result models.ExportResult
}

// Done はエクスポート完了時に閉じられるチャネルを返します
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait はエクスポートの完了を待って結果を返します
func (t *Task) Wait() models.ExportResult {
	<-t.done
	return t.result
}

// Start はエクスポートを1つのゴルーチンで開始します。
// 実行中のエクスポートがある場合は ErrExportInProgress を返します。
func (e *Exporter) Start(ctx context.Context, req models.ExportRequest) (*Task, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}

	runID := uuid.NewString()
	task := &Task{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		defer e.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				err := errors.Errorf("予期しないエラー: %v", r)
				task.result = models.ExportResult{
					RunID:    runID,
					State:    models.StateFailed,
					Outcome:  models.OutcomeUnexpected,
					Severity: models.SeverityError,
					Message:  fmt.Sprintf("エラー: %v", err),
					Err:      err,
				}
				utils.LogError("[%s] エクスポート中にpanicが発生しました: %v", runID, r)
			}
		}()

		task.result = e.run(ctx, runID, req)
	}()

	return task, nil
}

// cleanKeys は前後の空白を取り除き、空のキーを除外します
func cleanKeys(keys []string) []string {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return cleaned
}

// fileNameFor はキーをファイル名として使えるように区切り文字を置き換えます
func fileNameFor(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
}
