package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"

	"rawwebapi/config"

	log "github.com/sirupsen/logrus"
)

// Source tells where a Handle came from.
type Source string

const (
	SourcePath       Source = "path"
	SourceInstallDir Source = "install-dir"
	SourceDownload   Source = "download"
)

// Handle points at a usable converter executable.
type Handle struct {
	Path string `json:"path"`
	// Dir is added to the converter's own PATH when it runs.
	Dir string `json:"dir"`
	// Installed is true when the executable was already on the machine and
	// nothing was downloaded.
	Installed bool   `json:"installed"`
	Source    Source `json:"source"`
}

// Resolver finds ThermoRawFileParser or installs it from a release archive.
type Resolver struct {
	bin        string
	installDir string
	url        string
	platform   Platform
	httpClient *http.Client
	lookPath   func(file string) (string, error)
	progress   io.Writer
}

// NewResolver builds a resolver from cfg. Download progress is written to
// progress; pass nil to disable it.
func NewResolver(cfg *config.Config, progress io.Writer) *Resolver {
	return &Resolver{
		bin:        cfg.ConverterBin,
		installDir: cfg.InstallDir,
		url:        cfg.InstallURL,
		platform:   HostPlatform(),
		httpClient: &http.Client{Timeout: cfg.DownloadTimeout},
		lookPath:   exec.LookPath,
		progress:   progress,
	}
}

// Resolve returns a handle to the converter. It never downloads when the
// executable is already on PATH or in the install directory.
func (r *Resolver) Resolve(ctx context.Context) (*Handle, error) {
	exeName := ExecutableName(r.bin, r.platform.OS)

	if p, err := r.lookPath(exeName); err == nil {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		log.Infof("ThermoRawFileParser is already installed at: %s", abs)
		return &Handle{Path: abs, Dir: filepath.Dir(abs), Installed: true, Source: SourcePath}, nil
	}

	// A previous run may have left a complete install behind.
	if p, _ := FindExecutable(r.installDir, exeName); p != "" {
		if err := r.makeExecutable(p); err != nil {
			return nil, err
		}
		h := r.handle(p, true, SourceInstallDir)
		log.Infof("ThermoRawFileParser found in install directory at: %s", h.Path)
		return h, nil
	}

	downloadURL := r.url
	if downloadURL == "" {
		u, err := DownloadURL(r.platform)
		if err != nil {
			return nil, &InstallError{Dir: r.installDir, Executable: exeName, Err: err}
		}
		downloadURL = u
	}

	log.Infof("ThermoRawFileParser not found. Downloading %s", downloadURL)
	if err := os.MkdirAll(r.installDir, 0o755); err != nil {
		return nil, &InstallError{Dir: r.installDir, Executable: exeName, Err: err}
	}

	archivePath := filepath.Join(r.installDir, archiveName(downloadURL))
	if err := download(ctx, r.httpClient, downloadURL, archivePath, r.progress); err != nil {
		var instErr *InstallError
		if errors.As(err, &instErr) {
			instErr.Executable = exeName
		}
		return nil, err
	}
	defer os.Remove(archivePath)
	log.Info("Downloaded ThermoRawFileParser binary.")

	if err := Extract(archivePath, r.installDir); err != nil {
		return nil, &InstallError{Dir: r.installDir, Executable: exeName, Err: err}
	}
	log.Info("Extracted ThermoRawFileParser.")

	exePath, err := FindExecutable(r.installDir, exeName)
	if err != nil {
		return nil, &InstallError{Dir: r.installDir, Executable: exeName, Err: err}
	}
	if exePath == "" {
		return nil, &InstallError{Dir: r.installDir, Executable: exeName}
	}

	if err := r.makeExecutable(exePath); err != nil {
		return nil, err
	}

	h := r.handle(exePath, false, SourceDownload)
	log.Infof("ThermoRawFileParser installed at: %s", h.Path)
	return h, nil
}

func (r *Resolver) handle(p string, installed bool, src Source) *Handle {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return &Handle{Path: p, Dir: filepath.Dir(p), Installed: installed, Source: src}
}

// makeExecutable sets 0755 since zip extraction does not keep mode bits reliably.
func (r *Resolver) makeExecutable(p string) error {
	if r.platform.OS == "windows" {
		return nil
	}
	if err := os.Chmod(p, 0o755); err != nil {
		return &PermissionError{Path: p, Err: err}
	}
	return nil
}

// archiveName keeps the URL's file name so the extension picks the extractor.
func archiveName(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "ThermoRawFileParser.zip"
	}
	return name
}

// Describe renders a resolver outcome for humans.
func Describe(h *Handle, err error) string {
	if err != nil {
		return fmt.Sprintf("Could not install ThermoRawFileParser. Error: %v", err)
	}
	if h == nil {
		return "ThermoRawFileParser is not installed."
	}
	if h.Installed {
		return "ThermoRawFileParser is already installed at: " + h.Path
	}
	return "ThermoRawFileParser installed at: " + h.Path
}
