package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New 建立輸出 JSON 到 stdout 的結構化 logger
//
// 參數:
//
//	component: 元件名稱，會寫入每一筆 log 的 component 欄位
//	level: "debug", "info", "warn", "error"，其他值視為 info
func New(component, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, component, level)
}

// NewWithWriter 與 New 相同，但輸出到指定 writer (測試用)
func NewWithWriter(w io.Writer, component, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLevel 將設定檔字串轉為 zerolog 等級
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
