package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rawwebapi/config"

	"github.com/lithammer/shortuuid/v4"
	log "github.com/sirupsen/logrus"
)

// Runner invokes the external converter for a single staged file. A nil
// error means the process exited 0; it says nothing about the artifact.
type Runner interface {
	Run(ctx context.Context, t *Task) (logOutput string, err error)
}

const queueSize = 100

type Manager struct {
	cfg     *config.Config
	runner  Runner
	batches sync.Map
	queue   chan *Batch
	// mu serializes batches so only one converter process runs at a time.
	mu sync.Mutex
}

// item is an upload that has been staged (or failed to stage) and is waiting
// for the converter.
type item struct {
	task   *Task
	result Result
}

// NewManager builds the orchestrator. A nil runner means the converter could
// not be resolved; every conversion then fails with ErrConverterUnavailable.
func NewManager(cfg *config.Config, runner Runner) (*Manager, error) {
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create staging directory: %w", err)
	}
	return &Manager{
		cfg:    cfg,
		runner: runner,
		queue:  make(chan *Batch, queueSize),
	}, nil
}

// Available reports whether conversions can run at all.
func (m *Manager) Available() bool {
	return m.runner != nil
}

func (m *Manager) Start(ctx context.Context) {
	log.Infof("Conversion manager started. Staging directory: %s", m.cfg.StagingDir)
	go m.workerLoop(ctx)
	if m.cfg.OutputLifetime > 0 {
		go m.cleanupLoop(ctx)
	}
}

// Convert stages and converts every upload in order and returns one result
// per upload. Per-file failures are reported in the results; the error return
// is only for conditions that prevent the whole batch from running.
func (m *Manager) Convert(ctx context.Context, uploads []Upload) ([]Result, error) {
	if !m.Available() {
		return nil, ErrConverterUnavailable
	}
	if len(uploads) == 0 {
		return nil, ErrNoUploads
	}

	// Once started a batch runs to completion.
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]Result, 0, len(uploads))
	for _, u := range uploads {
		it := m.stage(u, m.cfg.UniqueStagingNames)
		m.convert(ctx, &it)
		results = append(results, it.result)
	}
	return results, nil
}

// Submit stages the uploads right away and queues the conversion for the
// background worker. Staged names always get a unique prefix: the files sit
// on disk until the worker reaches them and must not overwrite each other.
func (m *Manager) Submit(uploads []Upload) (*Batch, error) {
	if !m.Available() {
		return nil, ErrConverterUnavailable
	}
	if len(uploads) == 0 {
		return nil, ErrNoUploads
	}

	b := &Batch{
		ID:        fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	items := make([]item, 0, len(uploads))
	for _, u := range uploads {
		b.Files = append(b.Files, u.Name)
		items = append(items, m.stage(u, true))
	}

	m.batches.Store(b.ID, b.snapshot())
	select {
	case m.queue <- &Batch{ID: b.ID, Status: b.Status, Files: b.Files, CreatedAt: b.CreatedAt, items: items}:
	default:
		m.batches.Delete(b.ID)
		for _, it := range items {
			if it.task != nil {
				os.Remove(it.task.InputPath)
			}
		}
		log.Warnf("Batch %s rejected: queue is full.", b.ID)
		return nil, ErrQueueFull
	}
	log.Infof("Batch %s submitted with %d file(s).", b.ID, len(uploads))
	return b.snapshot(), nil
}

func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info("Worker loop shutting down.")
			m.failQueued()
			return
		case b := <-m.queue:
			m.processBatch(context.WithoutCancel(ctx), b)
		}
	}
}

func (m *Manager) processBatch(ctx context.Context, b *Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Infof("Processing batch %s", b.ID)
	b.Status = StatusProcessing
	b.StartedAt = time.Now()
	m.batches.Store(b.ID, b.snapshot())

	failed := 0
	for i := range b.items {
		m.convert(ctx, &b.items[i])
		b.Results = append(b.Results, b.items[i].result)
		if !b.items[i].result.Succeeded {
			failed++
		}
	}

	b.Status = StatusCompleted
	if failed == len(b.items) {
		b.Status = StatusFailed
		b.Error = "no file was converted"
	}
	b.CompletedAt = time.Now()
	b.items = nil
	m.batches.Store(b.ID, b.snapshot())
	log.Infof("Batch %s finished: %d converted, %d failed.", b.ID, len(b.Results)-failed, failed)
}

// failQueued marks every batch still waiting in the queue as failed.
func (m *Manager) failQueued() {
	for {
		select {
		case b := <-m.queue:
			b.Status = StatusFailed
			b.Error = "server shut down before the batch was processed"
			b.CompletedAt = time.Now()
			b.items = nil
			m.batches.Store(b.ID, b.snapshot())
			log.Warnf("Batch %s dropped at shutdown.", b.ID)
		default:
			return
		}
	}
}

// stage writes the upload into the staging directory and derives its task.
func (m *Manager) stage(u Upload, unique bool) item {
	it := item{result: Result{Name: u.Name}}

	name := sanitizeName(u.Name)
	if name == "" {
		it.result.Error = ErrInvalidName.Error()
		return it
	}
	if unique {
		name = shortuuid.New() + "_" + name
	}

	inputPath := filepath.Join(m.cfg.StagingDir, name)
	if err := m.writeUpload(inputPath, u.Reader); err != nil {
		log.Errorf("Failed to stage %s: %v", u.Name, err)
		it.result.Error = fmt.Sprintf("failed to stage upload: %v", err)
		return it
	}

	it.task = &Task{
		Name:               u.Name,
		InputPath:          inputPath,
		OutputDir:          m.cfg.OutputDir(),
		ExpectedOutputName: OutputName(name),
	}
	return it
}

func (m *Manager) writeUpload(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = r
	if m.cfg.MaxInputSize > 0 {
		src = &io.LimitedReader{R: r, N: m.cfg.MaxInputSize + 1}
	}
	written, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return err
	}
	if m.cfg.MaxInputSize > 0 && written > m.cfg.MaxInputSize {
		os.Remove(path)
		return fmt.Errorf("%w of %d bytes", ErrInputTooLarge, m.cfg.MaxInputSize)
	}
	return f.Close()
}

// convert runs the converter for a staged item and fills in its result.
func (m *Manager) convert(ctx context.Context, it *item) {
	if it.task == nil {
		return
	}
	t := it.task

	if err := os.MkdirAll(t.OutputDir, 0o755); err != nil {
		it.result.Error = fmt.Sprintf("could not create output directory: %v", err)
		return
	}

	if m.cfg.ConverterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ConverterTimeout)
		defer cancel()
	}

	log.Infof("Converting %s", t.InputPath)
	out, err := m.runner.Run(ctx, t)
	it.result.Log = out
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("conversion of %s timed out after %s: %w", t.Name, m.cfg.ConverterTimeout, err)
		}
		log.Warnf("Conversion of %s failed: %v", t.Name, err)
		it.result.Error = err.Error()
		return
	}

	expected := t.ExpectedOutputPath()
	if info, err := os.Stat(expected); err != nil || info.IsDir() {
		merr := &MissingOutputError{Name: t.Name, Expected: t.ExpectedOutputName}
		log.Warn(merr.Error())
		it.result.Error = merr.Error()
		return
	}

	log.Infof("Converted %s -> %s", t.Name, expected)
	it.result.Succeeded = true
	it.result.OutputPath = expected
	it.result.OutputName = t.ExpectedOutputName
}

// cleanupLoop removes staged inputs and outputs older than the configured lifetime.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval(m.cfg.OutputLifetime))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Cleanup loop shutting down.")
			return
		case <-ticker.C:
			m.removeExpired(m.cfg.StagingDir)
			m.removeExpired(m.cfg.OutputDir())
		}
	}
}

// cleanupInterval polls four times per lifetime, but never more often than
// once a second.
func cleanupInterval(lifetime time.Duration) time.Duration {
	if interval := lifetime / 4; interval > time.Second {
		return interval
	}
	return time.Second
}

func (m *Manager) removeExpired(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > m.cfg.OutputLifetime {
			path := filepath.Join(dir, e.Name())
			log.Infof("Cleaning up old file: %s", path)
			os.Remove(path)
		}
	}
}

func (m *Manager) Get(batchID string) (*Batch, bool) {
	if val, ok := m.batches.Load(batchID); ok {
		return val.(*Batch), true
	}
	return nil, false
}

func (m *Manager) List() []*Batch {
	var list []*Batch
	m.batches.Range(func(key, value interface{}) bool {
		list = append(list, value.(*Batch))
		return true
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

// GetFilePath resolves a converted file name for download.
func (m *Manager) GetFilePath(filename string) (string, error) {
	cleanFilename := filepath.Base(filename)
	if cleanFilename != filename || cleanFilename == "." || cleanFilename == ".." {
		return "", fmt.Errorf("invalid filename")
	}

	fullPath := filepath.Join(m.cfg.OutputDir(), cleanFilename)
	if info, err := os.Stat(fullPath); err != nil || info.IsDir() {
		return "", fmt.Errorf("file not found")
	}
	return fullPath, nil
}

// snapshot copies the exported state so readers never see a batch that the
// worker is still mutating.
func (b *Batch) snapshot() *Batch {
	c := *b
	c.items = nil
	c.Files = append([]string(nil), b.Files...)
	c.Results = append([]Result(nil), b.Results...)
	return &c
}

// sanitizeName keeps only the base name of a client-supplied file name.
// Windows clients may send full paths with backslashes.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}
