package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink appends JSON lines to a size-rotated log file. Retention is
// handled by rotation (MaxAge/MaxBackups), so Cleanup reports zero;
// Query scans the active file only, which is enough for local debugging.
type FileSink struct {
	mu   sync.Mutex
	path string
	w    *lumberjack.Logger
}

func NewFileSink(path string, retentionDays int) *FileSink {
	return &FileSink{
		path: path,
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    64, // megabytes
			MaxBackups: 10,
			MaxAge:     retentionDays,
			Compress:   true,
		},
	}
}

func (s *FileSink) Store(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(b)
	return err
}

func (s *FileSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	out := []Entry{}
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if matchFilter(e, f) {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, sc.Err()
}

func (s *FileSink) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	// rotation owns retention for files
	return 0, nil
}

func (s *FileSink) Close() error {
	return s.w.Close()
}
