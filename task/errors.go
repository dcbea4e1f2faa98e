package task

import (
	"errors"
	"fmt"
)

var (
	// ErrConverterUnavailable is returned when the resolver did not produce a
	// usable executable at startup.
	ErrConverterUnavailable = errors.New("ThermoRawFileParser is not installed")
	ErrNoUploads            = errors.New("no files to convert")
	ErrInputTooLarge        = errors.New("input file exceeds size limit")
	ErrInvalidName          = errors.New("invalid file name")
	ErrQueueFull            = errors.New("too many batches waiting, try again later")
)

// MissingOutputError means the converter reported success but the expected
// artifact is not on disk.
type MissingOutputError struct {
	Name     string
	Expected string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("conversion failed for %s: expected output %s was not produced", e.Name, e.Expected)
}
