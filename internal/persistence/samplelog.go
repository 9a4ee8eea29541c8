package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/wastewise/internal/engine"
)

// SampleLog writes one JSON line per tick sample into a zstd-compressed file.
type SampleLog struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
	n   int
}

// CreateSampleLog creates (or truncates) a .jsonl.zst file at path.
func CreateSampleLog(path string) (*SampleLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &SampleLog{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

// Write appends one sample.
func (l *SampleLog) Write(s engine.TickSample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return os.ErrClosed
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	l.n++
	return l.w.WriteByte('\n')
}

// Count returns how many samples have been written.
func (l *SampleLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Close flushes and closes the file.
func (l *SampleLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err1 error
	if l.w != nil {
		err1 = l.w.Flush()
		l.w = nil
	}
	if l.enc != nil {
		if err := l.enc.Close(); err1 == nil {
			err1 = err
		}
		l.enc = nil
	}
	if l.f != nil {
		if err := l.f.Close(); err1 == nil {
			err1 = err
		}
		l.f = nil
	}
	return err1
}

// ReadSampleLog decodes every sample from a .jsonl.zst file.
func ReadSampleLog(path string) ([]engine.TickSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []engine.TickSample
	for line := 1; sc.Scan(); line++ {
		var s engine.TickSample
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}
