package device

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultChunk is the smallest index range handed to one worker.
const DefaultChunk = 256

// Kernel processes the index range [lo, hi).
type Kernel func(lo, hi int) error

// Launch runs kernel over [0, n) in parallel chunks. The first kernel error
// cancels the remaining chunks and is returned.
func Launch(ctx context.Context, n int, kernel Kernel) error {
	return LaunchChunked(ctx, n, DefaultChunk, kernel)
}

func LaunchChunked(ctx context.Context, n, minChunk int, kernel Kernel) error {
	if n <= 0 {
		return nil
	}
	if minChunk < 1 {
		minChunk = 1
	}
	workers := runtime.GOMAXPROCS(0)
	if n <= minChunk || workers <= 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return kernel(0, n)
	}
	if n/minChunk < workers {
		workers = n / minChunk
	}
	chunkSize := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunkSize {
		start := start // per-iteration copy (go directive < 1.22)
		end := start + chunkSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return kernel(start, end)
		})
	}
	return g.Wait()
}
