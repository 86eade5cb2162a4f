package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one external media command. Implementations must honor the
// timeout and surface captured stderr in the returned error; media tools
// report everything useful there.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, argv ...string) (stdout string, err error)
}

// ExecRunner runs commands through os/exec with a per-command deadline.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, timeout time.Duration, argv ...string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("[media] Running command: %s...", strings.Join(argv[:min(3, len(argv))], " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %s", argv[0], timeout)
		}
		return "", fmt.Errorf("%s failed: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
