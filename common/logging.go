package common

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

var (
	loggersMu sync.Mutex
	loggers   []*log.Logger
	output    io.Writer = os.Stdout
	debug     bool
)

// NewLogger создает логгер с префиксом вида "[Name] ".
// Все логгеры, созданные здесь, переключаются вместе через SetLogOutput.
func NewLogger(prefix string) *log.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	l := log.New(output, prefix, log.LstdFlags|log.Lshortfile)
	loggers = append(loggers, l)
	return l
}

// SetLogOutput перенаправляет вывод всех логгеров (например, в файл на время работы TUI)
func SetLogOutput(w io.Writer) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	output = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

// SetLogLevel задает уровень журнала: "debug" включает запись каждого входящего сообщения
func SetLogLevel(level string) {
	loggersMu.Lock()
	debug = strings.EqualFold(level, "debug")
	loggersMu.Unlock()
}

// DebugEnabled сообщает, включен ли подробный журнал
func DebugEnabled() bool {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	return debug
}
