package vecpipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/vecpipe/vecpipe/datapoint"
	"github.com/vecpipe/vecpipe/lexical/bm25"
	"github.com/vecpipe/vecpipe/merge"
	"github.com/vecpipe/vecpipe/vectorindex"
)

var (
	// ErrInvalidInput is the root of the input-error family. Every
	// rejection of caller-supplied data (empty ids, empty vectors, mixed
	// query modes, bad config) unwraps to it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned for operations on a closed Pipeline.
	ErrClosed = errors.New("pipeline closed")

	// ErrNoEmbedder is returned when an operation needs a dense embedder
	// and none is configured.
	ErrNoEmbedder = errors.New("no embedder configured")
)

// CollaboratorError wraps a failure from an external collaborator with the
// pipeline stage that called it. The collaborator's error is preserved
// unchanged and can be accessed via errors.Unwrap.
type CollaboratorError struct {
	Stage string
	cause error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.cause)
}

func (e *CollaboratorError) Unwrap() error { return e.cause }

// inputSentinels are the package-level rejections that make up the
// input-error family.
var inputSentinels = []error{
	bm25.ErrInvalidBucketCount,
	datapoint.ErrEmptyID,
	datapoint.ErrEmptyVector,
	datapoint.ErrLengthMismatch,
	vectorindex.ErrNoIDs,
	vectorindex.ErrEmptyQuery,
	vectorindex.ErrEmptyEntryID,
	vectorindex.ErrEmptyEntryVector,
	merge.ErrMixedQueryInput,
	merge.ErrEmptyQueryInput,
	merge.ErrNoSparseEncoder,
	merge.ErrHybridNeedsText,
}

func isInputError(err error) bool {
	if errors.Is(err, ErrInvalidInput) {
		return true
	}
	for _, sentinel := range inputSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// translateError normalizes package-level errors into the root taxonomy:
// input rejections gain the ErrInvalidInput root, missing-embedder errors
// fold into ErrNoEmbedder, everything else passes through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, merge.ErrNoEmbedder) && !errors.Is(err, ErrNoEmbedder) {
		return fmt.Errorf("%w: %w", ErrNoEmbedder, err)
	}

	if !errors.Is(err, ErrInvalidInput) && isInputError(err) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return err
}

// stageError tags a collaborator failure with the stage that made the
// call. Input rejections, context ends, and already-tagged errors pass
// through so the taxonomy stays flat.
func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	if isInputError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrNoEmbedder) ||
		errors.Is(err, merge.ErrNoEmbedder) {
		return err
	}

	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}

	return &CollaboratorError{Stage: stage, cause: err}
}
