package models

import (
	"errors"
	"fmt"
)

// Code classifies pipeline and API failures. Codes are part of the
// persisted ErrorDetail so a failed job names what broke.
type Code string

const (
	CodeValidation           Code = "ValidationError"
	CodeAssetPoolEmpty       Code = "AssetPoolEmpty"
	CodeUnsupportedLanguage  Code = "UnsupportedLanguage"
	CodeUnsupportedVoice     Code = "UnsupportedVoice"
	CodeSynthesisFailed      Code = "SynthesisFailed"
	CodeTranscriptionFailed  Code = "TranscriptionFailed"
	CodeAssemblyFailed       Code = "AssemblyFailed"
	CodeTimeout              Code = "Timeout"
	CodeInterruptedByRestart Code = "InterruptedByRestart"
	CodeNotFound             Code = "NotFound"
	CodeStorage              Code = "StorageError"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// PipelineError carries a taxonomy code, an optional step identifier
// (assembly failures name the offending step), and the wrapped cause.
type PipelineError struct {
	Code Code
	Step string
	Err  error
}

func (e *PipelineError) Error() string {
	switch {
	case e.Step != "" && e.Err != nil:
		return fmt.Sprintf("%s (step: %s): %v", e.Code, e.Step, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Step != "":
		return fmt.Sprintf("%s (step: %s)", e.Code, e.Step)
	default:
		return string(e.Code)
	}
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err under the given code.
func NewPipelineError(code Code, err error) *PipelineError {
	return &PipelineError{Code: code, Err: err}
}

// NewStepError wraps err under the given code, naming the failed step.
func NewStepError(code Code, step string, err error) *PipelineError {
	return &PipelineError{Code: code, Step: step, Err: err}
}

// CodeOf extracts the taxonomy code from err. The second return is
// false when err carries no PipelineError anywhere in its chain.
func CodeOf(err error) (Code, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}
