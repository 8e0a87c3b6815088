package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

// maxLineSize bounds a single captured frame.
const maxLineSize = 4 * 1024 * 1024

// FrameSink receives replayed frames in capture order.
type FrameSink func(frame []byte)

// Player reads segments back from object storage.
type Player struct {
	reader domain.BlobReader
	logger *slog.Logger
	// Speed scales the recorded gaps between frames. Zero replays as fast
	// as possible.
	Speed float64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPlayer creates a Player over reader.
func NewPlayer(reader domain.BlobReader, logger *slog.Logger) *Player {
	return &Player{
		reader: reader,
		logger: logger.With(slog.String("component", "capture_player")),
		sleep:  sleepCtx,
	}
}

// Segments lists the segment paths under prefix in capture order.
func (p *Player) Segments(ctx context.Context, prefix string) ([]string, error) {
	infos, err := p.reader.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("capture: list %s: %w", prefix, err)
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".jsonl") {
			paths = append(paths, info.Path)
		}
	}
	// Date directory and millisecond prefix make lexical order chronological.
	sort.Strings(paths)
	return paths, nil
}

// Play streams one segment into sink and returns the number of frames
// delivered. Malformed lines are skipped.
func (p *Player) Play(ctx context.Context, path string, sink FrameSink) (int, error) {
	body, err := p.reader.Get(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("capture: open %s: %w", path, err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		played  int
		skipped int
		last    int64
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return played, err
		}

		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || len(rec.Frame) == 0 {
			skipped++
			continue
		}

		if p.Speed > 0 && last > 0 && rec.Time > last {
			gap := time.Duration(float64(time.Duration(rec.Time-last)*time.Millisecond) / p.Speed)
			if err := p.sleep(ctx, gap); err != nil {
				return played, err
			}
		}
		last = rec.Time

		sink(rec.Frame)
		played++
	}
	if err := scanner.Err(); err != nil {
		return played, fmt.Errorf("capture: read %s: %w", path, err)
	}

	if skipped > 0 {
		p.logger.Warn("skipped malformed lines", slog.String("path", path), slog.Int("count", skipped))
	}
	return played, nil
}

// PlayAll plays every segment under prefix in order.
func (p *Player) PlayAll(ctx context.Context, prefix string, sink FrameSink) (int, error) {
	paths, err := p.Segments(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("capture: %w: no segments under %s", domain.ErrNotFound, prefix)
	}

	total := 0
	for _, path := range paths {
		n, err := p.Play(ctx, path, sink)
		total += n
		if err != nil {
			return total, err
		}
		p.logger.Info("segment replayed", slog.String("path", path), slog.Int("frames", n))
	}
	return total, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
