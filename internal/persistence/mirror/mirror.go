package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kartetris.ai/internal/logging"
)

// Uploader is what Mirror needs from Client.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type Options struct {
	// BaseDir is stripped from local paths to build object keys.
	BaseDir string
	Prefix  string
	Workers int
	Queue   int
	// EnqueueWait bounds how long Enqueue blocks on a full queue before
	// dropping the file.
	EnqueueWait time.Duration
	Attempts    int
	Logger      *slog.Logger
}

type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	Enqueued        uint64 `json:"enqueued"`
	Dropped         uint64 `json:"dropped"`
	Uploaded        uint64 `json:"uploaded"`
	Failed          uint64 `json:"failed"`
	LastSuccessUnix int64  `json:"last_success_unix"`
	LastErrorUnix   int64  `json:"last_error_unix"`
}

// Mirror uploads files handed to Enqueue from a fixed worker pool.
type Mirror struct {
	up   Uploader
	opts Options
	log  *slog.Logger

	jobs chan string
	wg   sync.WaitGroup
	once sync.Once

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	uploaded    atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Int64
	lastError   atomic.Int64

	backoff func(attempt int) time.Duration
}

func New(up Uploader, opts Options) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 256
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")
	m := &Mirror{
		up:   up,
		opts: opts,
		log:  logging.OrDiscard(opts.Logger),
		jobs: make(chan string, opts.Queue),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 200 * time.Millisecond
		},
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.uploadOne(p)
			}
		}()
	}
	return m
}

// Enqueue schedules localPath for upload. It never blocks longer than
// EnqueueWait.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	timer := time.NewTimer(m.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- localPath:
	case <-timer.C:
		n := m.dropped.Add(1)
		m.log.Warn("mirror drop", "path", localPath, "reason", "queue_saturated", "dropped", n)
	}
}

// Close stops accepting files and waits for queued uploads.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() { close(m.jobs) })
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(m.jobs),
		QueueCapacity:   cap(m.jobs),
		Enqueued:        m.enqueued.Load(),
		Dropped:         m.dropped.Load(),
		Uploaded:        m.uploaded.Load(),
		Failed:          m.failed.Load(),
		LastSuccessUnix: m.lastSuccess.Load(),
		LastErrorUnix:   m.lastError.Load(),
	}
}

func (m *Mirror) uploadOne(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.log.Warn("mirror skip", "path", localPath, "err", err)
		return
	}
	var lastErr error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.up.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < m.opts.Attempts {
			time.Sleep(m.backoff(attempt))
		}
	}
	if lastErr != nil {
		m.failed.Add(1)
		m.lastError.Store(time.Now().Unix())
		m.log.Error("mirror upload failed", "key", key, "path", localPath, "err", lastErr)
		return
	}
	m.uploaded.Add(1)
	m.lastSuccess.Store(time.Now().Unix())
	m.log.Info("mirror uploaded", "key", key)
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.opts.BaseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.opts.Prefix != "" {
		rel = path.Join(m.opts.Prefix, rel)
	}
	return rel, nil
}
