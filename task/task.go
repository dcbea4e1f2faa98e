package task

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// OutputFormat is the format selector passed to the converter with -f.
const OutputFormat = "mzML"

// OutputExt is appended to the input base name to get the artifact name.
const OutputExt = ".mzML"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Upload is one file received from the client.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Task is the conversion of a single staged upload.
type Task struct {
	Name               string
	InputPath          string
	OutputDir          string
	ExpectedOutputName string
}

// ExpectedOutputPath is where the converter must leave its artifact.
func (t *Task) ExpectedOutputPath() string {
	return filepath.Join(t.OutputDir, t.ExpectedOutputName)
}

// Result is the outcome for one upload. Exactly one is produced per Upload.
type Result struct {
	Name        string `json:"name"`
	Succeeded   bool   `json:"succeeded"`
	OutputPath  string `json:"-"`
	OutputName  string `json:"output,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
	Log         string `json:"converterOutput,omitempty"`
}

// Batch groups the results of one convert request.
type Batch struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Files       []string  `json:"files"`
	Results     []Result  `json:"results,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	items       []item
}

// OutputName maps an upload name to the artifact the converter writes,
// e.g. "sample.raw" -> "sample.mzML". Only the last extension is replaced.
func OutputName(uploadName string) string {
	base := filepath.Base(uploadName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + OutputExt
}
