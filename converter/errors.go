package converter

import "fmt"

// NetworkError means the release archive could not be downloaded.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("downloading %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("downloading %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// InstallError means the archive was fetched but no usable executable came
// out of it.
type InstallError struct {
	Dir        string
	Executable string
	Err        error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("installing %s into %s: %v", e.Executable, e.Dir, e.Err)
	}
	return fmt.Sprintf("%s not found in extracted files under %s", e.Executable, e.Dir)
}

func (e *InstallError) Unwrap() error { return e.Err }

// PermissionError means the executable bit could not be set.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("making %s executable: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// ConversionProcessError means the converter exited with a non-zero status.
type ConversionProcessError struct {
	Input    string
	ExitCode int
	Err      error
}

func (e *ConversionProcessError) Error() string {
	return fmt.Sprintf("an error occurred while converting %s: exit status %d", e.Input, e.ExitCode)
}

func (e *ConversionProcessError) Unwrap() error { return e.Err }
