// Package matchlog records relayed match traffic as hourly-rotated,
// zstd-compressed JSONL files and reads them back.
package matchlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const filePrefix = "matches"

// Writer appends JSON lines to <dir>/<prefix>-<UTC hour>.jsonl.zst.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	path    string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

type WriterOptions struct {
	// OnClose is called with the path of every file the writer finishes,
	// on rotation and on Close.
	OnClose func(path string)
}

func NewWriter(baseDir string) *Writer {
	return NewWriterWithOptions(baseDir, WriterOptions{})
}

func NewWriterWithOptions(baseDir string, opts WriterOptions) *Writer {
	return &Writer{baseDir: baseDir, prefix: filePrefix, now: time.Now, onClose: opts.OnClose}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Record writes one entry and flushes it to the encoder.
func (w *Writer) Record(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if e.Time.IsZero() {
		e.Time = now
	}
	hour := now.Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.path = path
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
		if w.onClose != nil {
			w.onClose(w.path)
		}
	}
	w.w = nil
	w.path = ""
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}
