// Package parallel splits index ranges across goroutines. The data loaders
// use it to synthesize batch rows and decode corpus files concurrently.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count. Items are whole
// utterances, so a single item already justifies a goroutine.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	_ = ForErr(n, func(i int) error {
		f(i)
		return nil
	}, cfg)
}

// ForErr is For for functions that can fail. Every index runs; the error
// returned is the one with the lowest index, so results do not depend on
// scheduling.
func ForErr(n int, f func(i int) error, cfg Config) error {
	workers := max(cfg.NumWorkers, 1)
	chunk := max(cfg.MinChunkSize, 1)
	if !cfg.Enabled || workers == 1 || n < 2*chunk {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	chunkSize := max((n+workers-1)/workers, chunk)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				errs[i] = f(i)
			}
		}(start, end)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
