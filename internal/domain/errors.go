package domain

import "errors"

var (
	// ErrUnsupportedFormat signals bytes that cannot be decoded as an image.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrExtractionFailure signals an internal feature extraction error.
	ErrExtractionFailure = errors.New("feature extraction failed")
	// ErrExtractorBusy signals a full extraction queue.
	ErrExtractorBusy = errors.New("feature extractor busy")
	// ErrInvalidCategory signals a category outside the configured set.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidVector signals a client-supplied vector that cannot be searched.
	ErrInvalidVector = errors.New("invalid vector")
	// ErrInvalidRecord signals an image record that fails validation.
	ErrInvalidRecord = errors.New("invalid image record")
	// ErrDuplicateID signals an insert of an id that already exists.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrDimensionMismatch signals a vector whose length differs from the deployment dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNotFound signals a missing image record.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable signals a vector store that stayed unreachable after retries.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
