package converter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

// download streams url into dstPath. Progress goes to progress when it is
// not nil.
func download(ctx context.Context, client *http.Client, url, dstPath string, progress io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	f, err := os.Create(dstPath)
	if err != nil {
		return &InstallError{Dir: filepath.Dir(dstPath), Err: fmt.Errorf("creating file %s: %w", dstPath, err)}
	}
	defer f.Close()

	var dst io.Writer = f
	if progress != nil {
		bar := progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription("downloading ThermoRawFileParser"),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(progress, "\n")
			}),
		)
		defer bar.Finish()
		dst = io.MultiWriter(f, bar)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		f.Close()
		os.Remove(dstPath)
		return &NetworkError{URL: url, Err: fmt.Errorf("writing %s: %w", dstPath, err)}
	}
	return f.Close()
}
