// rawwebapi/task/manager_test.go
package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rawwebapi/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunner is a mock implementation of the Runner interface for testing.
// By default it behaves like a converter that always succeeds.
type mockRunner struct {
	mu      sync.Mutex
	calls   []string
	runFunc func(ctx context.Context, t *Task) (string, error)
}

func (m *mockRunner) Run(ctx context.Context, t *Task) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, t.Name)
	m.mu.Unlock()
	if m.runFunc != nil {
		return m.runFunc(ctx, t)
	}
	return writeOutput(t)
}

func (m *mockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func writeOutput(t *Task) (string, error) {
	return "ok", os.WriteFile(t.ExpectedOutputPath(), []byte("<mzML/>"), 0o644)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		StagingDir:   filepath.Join(t.TempDir(), "temp_files"),
		MaxInputSize: 1024,
	}
}

func uploads(names ...string) []Upload {
	var out []Upload
	for _, n := range names {
		out = append(out, Upload{Name: n, Reader: strings.NewReader("raw bytes of " + n)})
	}
	return out
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"X.raw":              "X.mzML",
		"sample.RAW":         "sample.mzML",
		"run.2024.01.raw":    "run.2024.01.mzML",
		"noext":              "noext.mzML",
		"dir/nested/QC.raw":  "QC.mzML",
		"short_id_a.raw":     "short_id_a.mzML",
	}
	for in, want := range tests {
		assert.Equal(t, want, OutputName(in), in)
	}
}

func TestManager_Convert(t *testing.T) {
	t.Run("two files both convert", func(t *testing.T) {
		cfg := testConfig(t)
		mgr, err := NewManager(cfg, &mockRunner{})
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), uploads("a.raw", "b.raw"))
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.True(t, results[0].Succeeded)
		assert.Equal(t, "a.mzML", results[0].OutputName)
		assert.Equal(t, filepath.Join(cfg.OutputDir(), "a.mzML"), results[0].OutputPath)
		assert.True(t, results[1].Succeeded)
		assert.Equal(t, "b.mzML", results[1].OutputName)

		staged, err := os.ReadFile(filepath.Join(cfg.StagingDir, "a.raw"))
		require.NoError(t, err)
		assert.Equal(t, "raw bytes of a.raw", string(staged))
	})

	t.Run("one failing file does not stop the batch", func(t *testing.T) {
		cfg := testConfig(t)
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				if t.Name == "b.raw" {
					return "error log", errors.New("exit status 1")
				}
				return writeOutput(t)
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), uploads("a.raw", "b.raw", "c.raw", "d.raw"))
		require.NoError(t, err)
		require.Len(t, results, 4)

		succeeded := 0
		for _, r := range results {
			if r.Succeeded {
				succeeded++
			}
		}
		assert.Equal(t, 3, succeeded)
		assert.False(t, results[1].Succeeded)
		assert.Equal(t, "exit status 1", results[1].Error)
		assert.Equal(t, "error log", results[1].Log)
		assert.Equal(t, []string{"a.raw", "b.raw", "c.raw", "d.raw"}, runner.Calls())
		assert.True(t, results[3].Succeeded)
	})

	t.Run("exit 0 without artifact is a failure", func(t *testing.T) {
		cfg := testConfig(t)
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				return "nothing written", nil
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), uploads("a.raw"))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].Succeeded)
		assert.Empty(t, results[0].OutputPath)
		assert.Contains(t, results[0].Error, "conversion failed for a.raw")
	})

	t.Run("converter unavailable", func(t *testing.T) {
		mgr, err := NewManager(testConfig(t), nil)
		require.NoError(t, err)
		assert.False(t, mgr.Available())

		_, err = mgr.Convert(context.Background(), uploads("a.raw"))
		assert.ErrorIs(t, err, ErrConverterUnavailable)
	})

	t.Run("no uploads", func(t *testing.T) {
		mgr, err := NewManager(testConfig(t), &mockRunner{})
		require.NoError(t, err)

		_, err = mgr.Convert(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoUploads)
	})

	t.Run("oversized upload fails only that file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MaxInputSize = 8
		runner := &mockRunner{}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), []Upload{
			{Name: "big.raw", Reader: strings.NewReader("0123456789")},
			{Name: "ok.raw", Reader: strings.NewReader("01234567")},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.False(t, results[0].Succeeded)
		assert.Contains(t, results[0].Error, "exceeds size limit")
		assert.NoFileExists(t, filepath.Join(cfg.StagingDir, "big.raw"))
		assert.True(t, results[1].Succeeded)
		assert.Equal(t, []string{"ok.raw"}, runner.Calls())
	})

	t.Run("path components are stripped from names", func(t *testing.T) {
		cfg := testConfig(t)
		mgr, err := NewManager(cfg, &mockRunner{})
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), []Upload{
			{Name: "../../etc/evil.raw", Reader: strings.NewReader("x")},
			{Name: `C:\data\win.raw`, Reader: strings.NewReader("x")},
			{Name: "..", Reader: strings.NewReader("x")},
		})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.FileExists(t, filepath.Join(cfg.StagingDir, "evil.raw"))
		assert.Equal(t, "win.mzML", results[1].OutputName)
		assert.False(t, results[2].Succeeded)
		assert.Equal(t, ErrInvalidName.Error(), results[2].Error)
	})

	t.Run("same-named uploads overwrite the staged file", func(t *testing.T) {
		cfg := testConfig(t)
		var seen []string
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				data, _ := os.ReadFile(t.InputPath)
				seen = append(seen, string(data))
				return writeOutput(t)
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), []Upload{
			{Name: "dup.raw", Reader: strings.NewReader("first")},
			{Name: "dup.raw", Reader: strings.NewReader("second")},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, results[0].OutputPath, results[1].OutputPath)
		assert.Equal(t, []string{"first", "second"}, seen)
	})

	t.Run("unique staging names keep duplicates apart", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.UniqueStagingNames = true
		mgr, err := NewManager(cfg, &mockRunner{})
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), uploads("dup.raw", "dup.raw"))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.True(t, results[0].Succeeded)
		assert.True(t, results[1].Succeeded)
		assert.NotEqual(t, results[0].OutputPath, results[1].OutputPath)
		assert.True(t, strings.HasSuffix(results[0].OutputName, "_dup.mzML"))
	})

	t.Run("caller cancellation does not reach the converter", func(t *testing.T) {
		cfg := testConfig(t)
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return writeOutput(t)
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results, err := mgr.Convert(ctx, uploads("a.raw"))
		require.NoError(t, err)
		assert.True(t, results[0].Succeeded)
	})

	t.Run("timeout fails the file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ConverterTimeout = 10 * time.Millisecond
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)

		results, err := mgr.Convert(context.Background(), uploads("slow.raw"))
		require.NoError(t, err)
		assert.False(t, results[0].Succeeded)
		assert.Contains(t, results[0].Error, "timed out")
	})
}

func TestManager_Submit(t *testing.T) {
	t.Run("batch is processed by the worker", func(t *testing.T) {
		cfg := testConfig(t)
		mgr, err := NewManager(cfg, &mockRunner{})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mgr.Start(ctx)

		b, err := mgr.Submit(uploads("a.raw", "b.raw"))
		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, StatusQueued, b.Status)
		assert.Equal(t, []string{"a.raw", "b.raw"}, b.Files)

		require.Eventually(t, func() bool {
			got, ok := mgr.Get(b.ID)
			return ok && got.Status == StatusCompleted
		}, time.Second, 10*time.Millisecond)

		got, _ := mgr.Get(b.ID)
		require.Len(t, got.Results, 2)
		assert.True(t, strings.HasSuffix(got.Results[0].OutputName, "_a.mzML"))
		assert.False(t, got.CompletedAt.IsZero())
		assert.Len(t, mgr.List(), 1)
	})

	t.Run("batch with only failures is marked failed", func(t *testing.T) {
		cfg := testConfig(t)
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				return "", errors.New("exit status 2")
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mgr.Start(ctx)

		b, err := mgr.Submit(uploads("a.raw"))
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, ok := mgr.Get(b.ID)
			return ok && got.Status == StatusFailed
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("same name in one batch keeps both files", func(t *testing.T) {
		cfg := testConfig(t)
		runner := &mockRunner{
			runFunc: func(ctx context.Context, t *Task) (string, error) {
				data, err := os.ReadFile(t.InputPath)
				if err != nil {
					return "", err
				}
				return "ok", os.WriteFile(t.ExpectedOutputPath(), data, 0o644)
			},
		}
		mgr, err := NewManager(cfg, runner)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mgr.Start(ctx)

		b, err := mgr.Submit([]Upload{
			{Name: "e.raw", Reader: strings.NewReader("first")},
			{Name: "e.raw", Reader: strings.NewReader("second")},
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, ok := mgr.Get(b.ID)
			return ok && got.Status == StatusCompleted
		}, time.Second, 10*time.Millisecond)

		got, _ := mgr.Get(b.ID)
		require.Len(t, got.Results, 2)
		assert.NotEqual(t, got.Results[0].OutputName, got.Results[1].OutputName)

		first, err := os.ReadFile(got.Results[0].OutputPath)
		require.NoError(t, err)
		second, err := os.ReadFile(got.Results[1].OutputPath)
		require.NoError(t, err)
		assert.Equal(t, "first", string(first))
		assert.Equal(t, "second", string(second))
	})

	t.Run("full queue rejects the batch", func(t *testing.T) {
		cfg := testConfig(t)
		mgr, err := NewManager(cfg, &mockRunner{})
		require.NoError(t, err)

		// No worker is running, so nothing drains the queue.
		for i := 0; i < queueSize; i++ {
			_, err := mgr.Submit(uploads("a.raw"))
			require.NoError(t, err)
		}

		b, err := mgr.Submit(uploads("overflow.raw"))
		assert.Nil(t, b)
		assert.ErrorIs(t, err, ErrQueueFull)
		assert.Len(t, mgr.List(), queueSize)

		matches, err := filepath.Glob(filepath.Join(cfg.StagingDir, "*_overflow.raw"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("queued batches fail at shutdown", func(t *testing.T) {
		runner := &mockRunner{}
		mgr, err := NewManager(testConfig(t), runner)
		require.NoError(t, err)

		b, err := mgr.Submit(uploads("a.raw"))
		require.NoError(t, err)

		mgr.failQueued()

		got, ok := mgr.Get(b.ID)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, got.Status)
		assert.NotEmpty(t, got.Error)
		assert.False(t, got.CompletedAt.IsZero())
		assert.Empty(t, runner.Calls())
		assert.Empty(t, mgr.queue)
	})

	t.Run("converter unavailable", func(t *testing.T) {
		mgr, err := NewManager(testConfig(t), nil)
		require.NoError(t, err)

		_, err = mgr.Submit(uploads("a.raw"))
		assert.ErrorIs(t, err, ErrConverterUnavailable)
		assert.Empty(t, mgr.List())
	})

	t.Run("unknown batch", func(t *testing.T) {
		mgr, err := NewManager(testConfig(t), &mockRunner{})
		require.NoError(t, err)
		_, found := mgr.Get("nonexistent")
		assert.False(t, found)
	})
}

func TestManager_GetFilePath(t *testing.T) {
	cfg := testConfig(t)
	mgr, err := NewManager(cfg, &mockRunner{})
	require.NoError(t, err)
	_, err = mgr.Convert(context.Background(), uploads("a.raw"))
	require.NoError(t, err)

	p, err := mgr.GetFilePath("a.mzML")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir(), "a.mzML"), p)

	_, err = mgr.GetFilePath("../a.raw")
	assert.EqualError(t, err, "invalid filename")

	_, err = mgr.GetFilePath("missing.mzML")
	assert.EqualError(t, err, "file not found")
}

func TestManager_RemoveExpired(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputLifetime = time.Hour
	mgr, err := NewManager(cfg, &mockRunner{})
	require.NoError(t, err)

	old := filepath.Join(cfg.StagingDir, "old.raw")
	fresh := filepath.Join(cfg.StagingDir, "fresh.raw")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	mgr.removeExpired(cfg.StagingDir)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestCleanupInterval(t *testing.T) {
	assert.Equal(t, 15*time.Minute, cleanupInterval(time.Hour))
	assert.Equal(t, time.Second, cleanupInterval(3*time.Second))
	assert.Equal(t, time.Second, cleanupInterval(time.Nanosecond))
}
