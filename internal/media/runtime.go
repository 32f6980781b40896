package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const (
	RuntimeFFmpeg  = "ffmpeg"
	RuntimeFFprobe = "ffprobe"
)

// ErrRuntimeNotFound is returned when a required binary is not available
var ErrRuntimeNotFound = errors.New("runtime not found")

// FindRuntime locates the binary in PATH, unless an explicit path is given
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: `%s` not found in PATH", ErrRuntimeNotFound, runtime)
		}
		return "", fmt.Errorf("locating `%s`: %w", runtime, err)
	}

	return binPath, nil
}

// Runner executes an external command and returns its standard output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs the command, attaching trimmed stderr to the error
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s exited with error: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s exited with error: %w", name, err)
	}

	return out, nil
}
