package models

// ExportState はエクスポート処理の状態です
type ExportState int

const (
	StateIdle ExportState = iota
	StateValidating
	StateAuthenticating
	StateFetching
	StateWriting
	StateDone
	StateFailed
)

func (s ExportState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateAuthenticating:
		return "authenticating"
	case StateFetching:
		return "fetching"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal は終了状態かどうかを返します
func (s ExportState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Outcome はエクスポート結果の種別です
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeEmptyInput
	OutcomeAuthFailed
	OutcomeNoData
	OutcomeWriteFailed
	// OutcomeUnexpected は処理中のpanicなど想定外の失敗です
	OutcomeUnexpected
)

// Severity は結果表示の色分けに使う重要度です
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// ExportRequest はエクスポート要求です
type ExportRequest struct {
	Keys  []string
	Merge bool // trueの場合は1つのCSVにまとめる
}

// ExportResult はエクスポート1回分の結果です
type ExportResult struct {
	RunID    string
	State    ExportState
	Outcome  Outcome
	Message  string
	Severity Severity
	Files    []string
	Records  int
	Rows     int
	// Partial はページング途中でエラーが発生し、取得結果が欠けている可能性を示します
	Partial  bool
	Err      error
}
