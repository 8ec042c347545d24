package util

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error wraps exactly one of these so callers
// can branch with errors.Is without knowing the concrete cause.
var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("not found")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrStore                 = errors.New("store error")
)

var (
	ErrInvalidChunk        = fmt.Errorf("%w: chunk text must not be blank", ErrValidation)
	ErrEmptyQuery          = fmt.Errorf("%w: query must not be blank", ErrValidation)
	ErrInvalidTopK         = fmt.Errorf("%w: top_k out of range", ErrValidation)
	ErrUnsupportedFileType = fmt.Errorf("%w: unsupported file type", ErrValidation)
	ErrFileTooLarge        = fmt.Errorf("%w: file exceeds upload limit", ErrValidation)

	ErrDocumentNotFound = fmt.Errorf("%w: document", ErrNotFound)
	ErrBlobNotFound     = fmt.Errorf("%w: raw file", ErrNotFound)

	ErrEmbeddingUnavailable  = fmt.Errorf("%w: embedding model", ErrCapabilityUnavailable)
	ErrGenerationUnavailable = fmt.Errorf("%w: generation model", ErrCapabilityUnavailable)
	ErrDimensionMismatch     = fmt.Errorf("%w: embedding dimension mismatch", ErrCapabilityUnavailable)

	ErrRetrievalFailed  = errors.New("retrieval failed")
	ErrGenerationFailed = errors.New("generation failed")
)

var (
	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
