package logsvc

import (
	"sync"

	"github.com/trezcool/clubhub/core"
)

type Entry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// LoggerMock records entries instead of printing them.
type LoggerMock struct {
	mu      sync.Mutex
	entries []Entry
}

var _ core.Logger = (*LoggerMock)(nil)

func NewLoggerMock() *LoggerMock {
	return &LoggerMock{}
}

func (l *LoggerMock) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
}

// Entries returns the recorded entries of level, or all of them when level is empty.
func (l *LoggerMock) Entries(level string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *LoggerMock) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *LoggerMock) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *LoggerMock) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *LoggerMock) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *LoggerMock) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }
