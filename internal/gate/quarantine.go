package gate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderlab/textstudy/internal/model"
)

// LogTimeLayout is the local timestamp layout of rejection log lines.
const LogTimeLayout = "2006-01-02 15:04:05"

// Quarantine moves rejected sources out of the input directory.
type Quarantine struct {
	dir string
}

// NewQuarantine creates the quarantine directory if needed.
func NewQuarantine(dir string) (*Quarantine, error) {
	if dir == "" {
		return nil, fmt.Errorf("quarantine directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
	}
	return &Quarantine{dir: dir}, nil
}

// Dir returns the quarantine directory.
func (q *Quarantine) Dir() string {
	return q.dir
}

// Move relocates src into the quarantine directory under the same name and
// returns the new path. Falls back to copy and remove when rename fails,
// e.g. across filesystems.
func (q *Quarantine) Move(src string) (string, error) {
	dest := filepath.Join(q.dir, filepath.Base(src))
	err := os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("failed to copy %s into quarantine: %w", src, err)
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("failed to remove %s after copy: %w", src, err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			// Best-effort close for read-only source.
			_ = cerr
		}
	}()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		if rerr := os.Remove(dest); rerr != nil {
			// Best-effort removal of the partial copy.
			_ = rerr
		}
		return err
	}
	if err := out.Close(); err != nil {
		if rerr := os.Remove(dest); rerr != nil {
			// Best-effort removal of the partial copy.
			_ = rerr
		}
		return err
	}
	return nil
}

// RejectionLog appends one line per rejected participant.
type RejectionLog struct {
	path string
	now  func() time.Time
}

// NewRejectionLog returns a log writing to path. now defaults to time.Now.
func NewRejectionLog(path string, now func() time.Time) *RejectionLog {
	if now == nil {
		now = time.Now
	}
	return &RejectionLog{path: path, now: now}
}

// Path returns the log file path.
func (l *RejectionLog) Path() string {
	return l.path
}

// Append writes the outcome as "<timestamp> <participant>: <r1>; <r2>".
func (l *RejectionLog) Append(outcome model.Outcome) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open rejection log: %w", err)
	}
	if _, err := io.WriteString(f, FormatLogLine(l.now(), outcome)); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write rejection log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close rejection log: %w", err)
	}
	return nil
}

// FormatLogLine renders one rejection log line including the newline.
func FormatLogLine(at time.Time, outcome model.Outcome) string {
	return fmt.Sprintf("%s %s: %s\n",
		at.Local().Format(LogTimeLayout),
		outcome.ParticipantID,
		strings.Join(outcome.Reasons, "; "),
	)
}
