package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"slidecast/retry"
)

type fakeSpeech struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error // chunk text -> error
}

func (f *fakeSpeech) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	return []byte("RIFF" + text), nil
}

func newTestGenerator(speech *fakeSpeech) *Generator {
	c := retry.New(func() bool { return false })
	c.Sleep = func(time.Duration) {}
	return &Generator{Speech: speech, Caller: c, Workers: 4}
}

func chunkList(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk number %d", i+1)
	}
	return chunks
}

func TestGenerateWritesIndexStableFiles(t *testing.T) {
	dir := t.TempDir()
	g := newTestGenerator(&fakeSpeech{})
	chunks := chunkList(6)

	err := g.Generate(context.Background(), chunks, dir, ProgressWindow{Base: 45, Span: 20}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for n := 1; n <= 6; n++ {
		data, err := os.ReadFile(filepath.Join(dir, ClipName(n)))
		if err != nil {
			t.Fatalf("clip %d missing: %v", n, err)
		}
		want := "RIFF" + chunks[n-1]
		if string(data) != want {
			t.Errorf("clip %d holds wrong chunk: %q", n, data)
		}
	}
}

func TestGenerateAggregatesFailures(t *testing.T) {
	dir := t.TempDir()
	chunks := chunkList(5)
	speech := &fakeSpeech{fail: map[string]error{
		chunks[1]: errors.New("voice model crashed"),
		chunks[3]: errors.New("voice model crashed"),
	}}
	g := newTestGenerator(speech)

	err := g.Generate(context.Background(), chunks, dir, ProgressWindow{Base: 45, Span: 20}, nil)
	if err == nil {
		t.Fatal("expected stage failure")
	}
	if !strings.Contains(err.Error(), "2, 4") {
		t.Errorf("error should list failed 1-based indices 2, 4: %v", err)
	}
	// Non-fail-fast: siblings still completed.
	for _, n := range []int{1, 3, 5} {
		if _, statErr := os.Stat(filepath.Join(dir, ClipName(n))); statErr != nil {
			t.Errorf("sibling clip %d should have been written: %v", n, statErr)
		}
	}
}

func TestGenerateDetectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	chunks := chunkList(3)
	g := newTestGenerator(&fakeSpeech{})

	// Make clip 2's path unwritable by occupying it with a directory: the
	// task fails at write time, so the stage must fail and name index 2.
	if err := os.Mkdir(filepath.Join(dir, ClipName(2)), 0755); err != nil {
		t.Fatal(err)
	}
	err := g.Generate(context.Background(), chunks, dir, ProgressWindow{Base: 45, Span: 20}, nil)
	if err == nil {
		t.Fatal("expected failure when a clip cannot be written")
	}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("error should reference clip 2: %v", err)
	}
}

func TestGenerateProgressWindow(t *testing.T) {
	dir := t.TempDir()
	g := newTestGenerator(&fakeSpeech{})
	chunks := chunkList(4)

	var mu sync.Mutex
	var seen []int
	err := g.Generate(context.Background(), chunks, dir, ProgressWindow{Base: 45, Span: 20}, func(p int) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 progress emissions, got %v", seen)
	}
	want := []int{50, 55, 60, 65}
	for i, p := range seen {
		if p != want[i] {
			t.Errorf("progress %d = %d, want %d", i, p, want[i])
		}
		if p < 45 || p > 65 {
			t.Errorf("progress %d outside window: %d", i, p)
		}
	}
}

func TestGenerateCancelled(t *testing.T) {
	dir := t.TempDir()
	speech := &fakeSpeech{}
	c := retry.New(func() bool { return true })
	c.Sleep = func(time.Duration) {}
	g := &Generator{Speech: speech, Caller: c, Workers: 2}

	err := g.Generate(context.Background(), chunkList(3), dir, ProgressWindow{Base: 45, Span: 20}, nil)
	if !errors.Is(err, retry.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if speech.calls != 0 {
		t.Errorf("cancelled run still made %d speech calls", speech.calls)
	}
}
