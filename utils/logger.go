package utils

import (
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

var (
	// DebugLogger はデバッグレベルのログを出力します
	DebugLogger *log.Logger
	// InfoLogger は情報レベルのログを出力します
	InfoLogger *log.Logger
	// WarnLogger は警告レベルのログを出力します
	WarnLogger *log.Logger
	// ErrorLogger はエラーレベルのログを出力します
	ErrorLogger *log.Logger

	debugEnabled atomic.Bool
)

// init関数はパッケージがインポートされたときに自動的に実行されます
func init() {
	SetOutput(os.Stderr, os.Stderr)
}

// SetOutput はログの出力先を差し替えます。errOut はエラーログに使われます。
func SetOutput(out, errOut io.Writer) {
	DebugLogger = log.New(out, "DEBUG: ", log.Ldate|log.Ltime)
	InfoLogger = log.New(out, "INFO: ", log.Ldate|log.Ltime)
	WarnLogger = log.New(out, "WARN: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(errOut, "ERROR: ", log.Ldate|log.Ltime)
}

// SetDebug はデバッグログの出力を切り替えます
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// LogDebug はデバッグレベルのメッセージをログに記録します
func LogDebug(format string, v ...interface{}) {
	if debugEnabled.Load() {
		DebugLogger.Printf(format, v...)
	}
}

// LogInfo は情報レベルのメッセージをログに記録します
func LogInfo(format string, v ...interface{}) {
	InfoLogger.Printf(format, v...)
}

// LogWarn は警告レベルのメッセージをログに記録します
func LogWarn(format string, v ...interface{}) {
	WarnLogger.Printf(format, v...)
}

// LogError はエラーレベルのメッセージをログに記録します
func LogError(format string, v ...interface{}) {
	ErrorLogger.Printf(format, v...)
}

// TrackTime は関数の実行時間を計測して出力するユーティリティです
func TrackTime(start time.Time, name string) {
	elapsed := time.Since(start)
	LogInfo("%s 完了時間: %s", name, elapsed)
}
