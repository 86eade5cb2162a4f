package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"slidecast/retry"
)

// Synthesizer is the one capability this stage needs from the service client.
type Synthesizer interface {
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

// ProgressWindow maps this stage's 0-100% onto its slice of the overall
// pipeline progress.
type ProgressWindow struct {
	Base int
	Span int
}

// Generator produces all narration clips for a run with a bounded worker
// pool. Completion order across workers is unconstrained; output filenames
// are keyed by 1-based chunk index, so downstream concatenation reads them
// in script order regardless.
type Generator struct {
	Speech  Synthesizer
	Caller  *retry.Caller
	Workers int
}

type taskResult struct {
	index int // 0-based
	err   error
}

// ClipName returns the output filename for the 1-based clip index.
func ClipName(n int) string {
	return fmt.Sprintf("audio%d.wav", n)
}

// Generate synthesizes every chunk into dir. If any clip fails the whole
// stage fails with an error listing the 1-based failed indices, but sibling
// tasks are not cancelled: everything that can complete does. A post-hoc
// existence check catches clips whose worker reported success but whose file
// never landed.
func (g *Generator) Generate(ctx context.Context, chunks []string, dir string, win ProgressWindow, emit func(int)) error {
	workers := g.Workers
	if workers <= 0 {
		workers = 4
	}
	total := len(chunks)
	log.Printf("[audio] 🎵 Starting parallel audio generation: %d clips, %d workers", total, workers)

	tasks := make(chan int, total)
	results := make(chan taskResult, total)

	var mu sync.Mutex
	completed := 0

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				err := g.generateClip(ctx, idx, chunks[idx], dir)
				if err == nil {
					mu.Lock()
					completed++
					if emit != nil {
						emit(win.Base + completed*win.Span/total)
					}
					mu.Unlock()
					log.Printf("[audio] 🎵 Generated clip %d/%d", idx+1, total)
				}
				results <- taskResult{index: idx, err: err}
			}
		}()
	}

	for idx := range chunks {
		tasks <- idx
	}
	close(tasks)
	wg.Wait()
	close(results)

	var failed []int
	for res := range results {
		if res.err != nil {
			log.Printf("[audio] Failed to generate clip %d: %v", res.index+1, res.err)
			failed = append(failed, res.index+1)
		}
	}
	if len(failed) > 0 {
		if g.Caller.Cancelled != nil && g.Caller.Cancelled() {
			return retry.ErrCancelled
		}
		sort.Ints(failed)
		parts := make([]string, len(failed))
		for i, n := range failed {
			parts[i] = fmt.Sprintf("%d", n)
		}
		return fmt.Errorf("failed to generate audio files: %s", strings.Join(parts, ", "))
	}

	// A worker can report success while the file write lost a race with the
	// filesystem; verify every expected clip actually exists.
	var missing []string
	for n := 1; n <= total; n++ {
		if _, err := os.Stat(filepath.Join(dir, ClipName(n))); err != nil {
			missing = append(missing, ClipName(n))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing audio files after generation: %s", strings.Join(missing, ", "))
	}

	log.Printf("[audio] ✅ Generated %d audio clips", total)
	return nil
}

func (g *Generator) generateClip(ctx context.Context, idx int, chunk, dir string) error {
	var data []byte
	err := g.Caller.Do(fmt.Sprintf("tts clip %d", idx+1), func() error {
		var callErr error
		data, callErr = g.Speech.GenerateSpeech(ctx, chunk)
		return callErr
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ClipName(idx+1)), data, 0644)
}
