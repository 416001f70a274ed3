package services

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"xrayexport/models"
	"xrayexport/utils"
)

// utf8BOM は表計算ソフトがUTF-8として認識するための先頭バイトです
const utf8BOM = "\ufeff"

// LinkResolver はイシューのリンク先キーをセミコロン区切りで返します。
// 失敗時は空文字を返す必要があります。
type LinkResolver interface {
	ResolveLinks(ctx context.Context, issueKey string) string
}

// CSVProcessor はCSVファイルの読み書きとテストの平坦化を担当します
type CSVProcessor struct {
	links LinkResolver
}

// NewCSVProcessor は新しいCSVプロセッサーを作成します。
// links が nil の場合、Links列は常に空になります。
func NewCSVProcessor(links LinkResolver) *CSVProcessor {
	return &CSVProcessor{
		links: links,
	}
}

// Flatten はテスト一覧をCSV行に変換します。
// Issue Id はテストごとに start から1ずつ増えます（手順ごとではありません）。
// 手順が複数ある場合、親フィールドは先頭行にだけ出力されます。
func (p *CSVProcessor) Flatten(ctx context.Context, tests []models.TestRecord, start int) []models.CSVRow {
	rows := make([]models.CSVRow, 0, len(tests))

	for i, test := range tests {
		issueID := start + i
		links := p.resolveLinks(ctx, test.Key)
		repo := strings.TrimLeft(test.FolderPath, "/")

		if len(test.Steps) == 0 {
			rows = append(rows, models.CSVRow{
				TestRepo:     repo,
				IssueID:      issueID,
				IssueKey:     test.Key,
				TestType:     test.TestType,
				TestSummary:  test.Summary,
				TestPriority: test.Priority,
				Links:        links,
			})
			continue
		}

		for s, step := range test.Steps {
			row := models.CSVRow{
				IssueID:  issueID,
				TestType: test.TestType,
				Action:   step.Action,
				Data:     step.Data,
				Result:   step.Result,
			}
			if s == 0 {
				row.TestRepo = repo
				row.IssueKey = test.Key
				row.TestSummary = test.Summary
				row.TestPriority = test.Priority
				row.Links = links
			}
			rows = append(rows, row)
		}
	}

	return rows
}

func (p *CSVProcessor) resolveLinks(ctx context.Context, key string) string {
	if p.links == nil {
		return ""
	}
	return p.links.ResolveLinks(ctx, key)
}

// ReadKeysCSV はCSVの各行の1列目をイシューキーとして読み込みます。
// 空行は無視し、ヘッダー行の判定は行いません。
func (p *CSVProcessor) ReadKeysCSV(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "CSVオープンエラー")
	}
	defer file.Close()

	keys, err := ReadKeys(file)
	if err != nil {
		return nil, err
	}

	utils.LogInfo("キー一覧を読み込みました: %d 件 (%s)", len(keys), filePath)
	return keys, nil
}

// ReadKeys は r から1列目のキーを読み込みます
func ReadKeys(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var keys []string
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "CSV読み込みエラー")
		}
		if len(record) == 0 {
			continue
		}

		key := record[0]
		if first {
			key = strings.TrimPrefix(key, utf8BOM)
			first = false
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// WriteTestCSV はCSV行をBOM付きUTF-8で書き込みます
func (p *CSVProcessor) WriteTestCSV(path string, rows []models.CSVRow) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "出力フォルダ作成エラー")
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "CSVファイル作成エラー")
	}
	defer file.Close()

	if err := WriteRows(file, rows); err != nil {
		return err
	}

	utils.LogDebug("CSV書き込み完了: %s (%d 行)", path, len(rows))
	return file.Close()
}

// WriteRows はヘッダーとCSV行を w に書き込みます
func WriteRows(w io.Writer, rows []models.CSVRow) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return errors.Wrap(err, "BOM書き込みエラー")
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(models.CSVHeader); err != nil {
		return errors.Wrap(err, "ヘッダー書き込みエラー")
	}

	for _, row := range rows {
		if err := writer.Write(row.Record()); err != nil {
			return errors.Wrap(err, "行書き込みエラー")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "CSV書き込み完了エラー")
	}
	return nil
}
