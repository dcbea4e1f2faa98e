package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"rawwebapi/config"
	"rawwebapi/task"

	log "github.com/sirupsen/logrus"
)

type Runner struct {
	cfg       *config.Config
	handle    *Handle
	extraArgs []string
}

// NewRunner binds a resolved handle to the configured extra arguments.
func NewRunner(cfg *config.Config, h *Handle) (*Runner, error) {
	if h == nil || h.Path == "" {
		return nil, fmt.Errorf("no converter executable")
	}

	extra, err := SplitArgs(cfg.ConverterArgs)
	if err != nil {
		return nil, err
	}
	if err := ValidateArgs(extra); err != nil {
		return nil, fmt.Errorf("invalid CONVERTER_ARGS: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		handle:    h,
		extraArgs: extra,
	}, nil
}

// Args builds the converter command line for t.
func (r *Runner) Args(t *task.Task) []string {
	args := []string{"-i", t.InputPath, "-o", t.OutputDir, "-f", task.OutputFormat}
	return append(args, r.extraArgs...)
}

// Run executes the converter for t and returns its combined stdout/stderr.
// It blocks until the process exits.
func (r *Runner) Run(ctx context.Context, t *task.Task) (string, error) {
	if err := CheckResources(r.cfg.StagingDir, r.cfg.ThrottleFreeDisk, r.cfg.ThrottleFreeMem); err != nil {
		return "", fmt.Errorf("insufficient system resources: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.handle.Path, r.Args(t)...)
	cmd.Env = withPathDir(os.Environ(), r.handle.Dir)
	var outputBuf bytes.Buffer
	cmd.Stdout = &outputBuf
	cmd.Stderr = &outputBuf

	log.Debugf("Executing: %s", strings.Join(cmd.Args, " "))

	err := cmd.Run()
	outputLog := outputBuf.String()
	if err == nil {
		return outputLog, nil
	}

	if ctx.Err() != nil {
		return outputLog, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return outputLog, &ConversionProcessError{Input: t.Name, ExitCode: exitErr.ExitCode(), Err: err}
	}
	return outputLog, fmt.Errorf("could not run %s: %w", filepath.Base(r.handle.Path), err)
}

// withPathDir returns env with dir appended to PATH so the converter's own
// children can find it. The server's environment is left alone.
func withPathDir(env []string, dir string) []string {
	if dir == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(k, "PATH") && !found {
			found = true
			if v == "" {
				kv = k + "=" + dir
			} else {
				kv = k + "=" + v + string(os.PathListSeparator) + dir
			}
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+dir)
	}
	return out
}
