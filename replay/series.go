package replay

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/progress"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const DefaultSeriesWorkers = 4

// SeriesEntry is the result of one digest of a series
type SeriesEntry struct {
	Digest types.Digest `json:"digest"`
	Report *Report      `json:"report,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// SeriesResult summarizes a series. Entries keep the input order.
type SeriesResult struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
	Entries   []SeriesEntry `json:"entries"`
}

// ReadSeries parses a file with one digest per line. Blank lines and
// lines starting with # are skipped.
func ReadSeries(path string) ([]types.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.Digest

	scanner := bufio.NewScanner(f)
	line := 0

	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		d, err := types.ParseDigest(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		out = append(out, d)
	}

	return out, scanner.Err()
}

// SeriesProgression is the progress of the running series, nil when
// none runs
func (e *Engine) SeriesProgression() *progress.Progression {
	return e.series.GetProgression()
}

// RunSeries replays digests on a pool of workers. Every replay builds its
// own runtime and resolver; the sources and their cache are shared.
func (e *Engine) RunSeries(ctx context.Context, digests []types.Digest, workers int) *SeriesResult {
	if workers <= 0 {
		workers = DefaultSeriesWorkers
	}

	start := time.Now()
	res := &SeriesResult{
		RunID:   uuid.NewString(),
		Total:   len(digests),
		Entries: make([]SeriesEntry, len(digests)),
	}

	var succeeded, failed atomic.Int64

	// progress counts positions in digests
	doneCh := make(chan uint64, workers)

	var highest uint64
	if len(digests) > 0 {
		highest = uint64(len(digests) - 1)
	}

	e.series.StartProgression(res.RunID, 0, highest, doneCh)
	defer e.series.StopProgression()

	pool := workerpool.New(workers)

	for i, digest := range digests {
		if ctx.Err() != nil {
			break
		}

		i, digest := i, digest

		pool.Submit(func() {
			entry := SeriesEntry{Digest: digest}

			out, err := e.Replay(ctx, digest)

			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Report = NewReport(out)
			}

			if err == nil && out.Success() {
				succeeded.Inc()
			} else {
				failed.Inc()
			}

			// each worker writes its own slot
			res.Entries[i] = entry

			doneCh <- uint64(i)
		})
	}

	pool.StopWait()
	close(doneCh)

	for i := range res.Entries {
		if res.Entries[i].Digest.IsZero() {
			res.Entries[i] = SeriesEntry{Digest: digests[i], Error: context.Canceled.Error()}
			failed.Inc()
		}
	}

	res.Succeeded = int(succeeded.Load())
	res.Failed = int(failed.Load())
	res.Duration = time.Since(start)

	e.logger.Info("series finished",
		"run", res.RunID,
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"workers", workers,
	)

	return res
}
