// Package audit keeps the business trail of the relay: what was taken off the
// input queue and what was forwarded. Operational noise goes to zap instead.
package audit

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimestampLayout is a 12-hour clock without an AM/PM marker.
const TimestampLayout = "2006-01-02 03:04:05"

// Format renders one audit line.
func Format(ts time.Time, msg string) string {
	return fmt.Sprintf("%s:  %s\n", ts.Format(TimestampLayout), msg)
}

// FileLog appends timestamped lines to a file. Write failures are reported
// on the console logger and otherwise swallowed.
type FileLog struct {
	path    string
	logger  *zap.Logger
	nowFunc func() time.Time

	mu sync.Mutex
}

func NewFileLog(path string, logger *zap.Logger) *FileLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileLog{
		path:    path,
		logger:  logger.Named("audit"),
		nowFunc: time.Now,
	}
}

// Append writes msg as a single line.
func (l *FileLog) Append(msg string) {
	line := Format(l.nowFunc(), msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(line); err != nil {
		l.logger.Error("audit write failed", zap.String("path", l.path), zap.Error(err))
	}
}

func (l *FileLog) write(line string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
