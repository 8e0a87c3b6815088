// Package capture records raw exchange frames to object storage as JSONL
// segments and plays them back for offline reconciliation runs.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

const (
	// DefaultMaxFrames is the segment size that forces a flush.
	DefaultMaxFrames = 5000
	// DefaultFlushInterval bounds how long a frame waits in memory.
	DefaultFlushInterval = time.Minute

	contentType = "application/x-ndjson"
)

// Record is one line of a segment.
type Record struct {
	Time  int64           `json:"t"`
	Frame json.RawMessage `json:"frame"`
}

// RecorderConfig controls segment naming and flushing.
type RecorderConfig struct {
	Prefix        string
	MaxFrames     int
	FlushInterval time.Duration
}

// Recorder buffers raw frames and uploads them as segments named
// {prefix}/{YYYY-MM-DD}/{unix-ms}-{uuid}.jsonl.
type Recorder struct {
	writer domain.BlobWriter
	cfg    RecorderConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	buf     bytes.Buffer
	frames  int
	started time.Time
	full    chan struct{}

	segments int
	dropped  int
}

// NewRecorder creates a Recorder that uploads through writer.
func NewRecorder(writer domain.BlobWriter, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = DefaultMaxFrames
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "capture"
	}
	return &Recorder{
		writer: writer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "capture_recorder")),
		now:    time.Now,
		full:   make(chan struct{}, 1),
	}
}

// Record appends a frame to the current segment. Frames that are not valid
// JSON are counted and dropped. It never blocks on I/O.
func (r *Recorder) Record(frame []byte) {
	if !json.Valid(frame) {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return
	}

	line, err := json.Marshal(Record{Time: r.now().UnixMilli(), Frame: frame})
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.frames == 0 {
		r.started = r.now()
	}
	r.buf.Write(line)
	r.buf.WriteByte('\n')
	r.frames++
	isFull := r.frames >= r.cfg.MaxFrames
	r.mu.Unlock()

	if isFull {
		select {
		case r.full <- struct{}{}:
		default:
		}
	}
}

// Run flushes on every interval tick and whenever a segment fills up. On
// cancellation it makes a final flush with a short detached deadline.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := r.Flush(flushCtx); err != nil {
				r.logger.Error("final flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
		case <-r.full:
		}

		if _, err := r.Flush(ctx); err != nil {
			r.logger.Warn("flush failed", slog.String("error", err.Error()))
		}
	}
}

// Flush uploads the buffered frames as one segment and returns its path.
// It returns an empty path when nothing is buffered. On upload failure the
// frames are put back in front of anything recorded meanwhile.
func (r *Recorder) Flush(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.frames == 0 {
		r.mu.Unlock()
		return "", nil
	}
	data := bytes.Clone(r.buf.Bytes())
	frames, started := r.frames, r.started
	r.buf.Reset()
	r.frames = 0
	r.mu.Unlock()

	path := SegmentPath(r.cfg.Prefix, started, uuid.NewString())
	if err := r.writer.Put(ctx, path, bytes.NewReader(data), contentType); err != nil {
		r.mu.Lock()
		rest := bytes.Clone(r.buf.Bytes())
		r.buf.Reset()
		r.buf.Write(data)
		r.buf.Write(rest)
		r.frames += frames
		r.started = started
		r.mu.Unlock()
		return "", fmt.Errorf("capture: upload %s: %w", path, err)
	}

	r.mu.Lock()
	r.segments++
	r.mu.Unlock()

	r.logger.Info("segment uploaded",
		slog.String("path", path),
		slog.Int("frames", frames),
		slog.Int("bytes", len(data)),
	)
	return path, nil
}

// Stats returns the number of uploaded segments, buffered frames and
// dropped frames.
func (r *Recorder) Stats() (segments, buffered, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segments, r.frames, r.dropped
}

// SegmentPath builds the object path of a segment started at t.
func SegmentPath(prefix string, t time.Time, id string) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%s/%d-%s.jsonl", prefix, t.Format("2006-01-02"), t.UnixMilli(), id)
}
