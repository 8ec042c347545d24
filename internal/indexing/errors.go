package indexing

import (
	"context"
	"errors"
	"fmt"
)

// StageError is a terminal pipeline failure carrying its failure code.
type StageError struct {
	Stage Stage
	Code  Code
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// fail builds a StageError, reporting TIMEOUT whenever ctx has expired.
func fail(ctx context.Context, stage Stage, code Code, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &StageError{Stage: stage, Code: code, Err: err}
}

// CodeOf extracts the failure code from err; unknown errors map to fallback.
func CodeOf(err error, fallback Code) Code {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return fallback
}

// ParseCode accepts only the failure codes defined in this package.
func ParseCode(s string) (Code, bool) {
	switch c := Code(s); c {
	case CodeDocumentNotFound, CodeFileNotFound, CodeNoChunksCreated, CodeEmbeddingUnavailable,
		CodeStoreError, CodeRegistryError, CodeTimeout, CodeNotScheduled, CodeInternal:
		return c, true
	}
	return "", false
}
