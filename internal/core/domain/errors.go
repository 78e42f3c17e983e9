package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrChunkNotFound = errors.New("chunk not found")
	ErrTemporary     = errors.New("temporary failure")

	// Pipeline failure kinds. Every one of these has an owned fallback:
	// retrieval degrades to the surviving signal, rerank falls back to
	// neutral scores, generation yields the fixed apology response, and
	// rewrite/summarize keep their input unchanged.
	ErrRetrieval  = errors.New("retrieval failure")
	ErrRerank     = errors.New("rerank failure")
	ErrGeneration = errors.New("generation failure")
	ErrRewrite    = errors.New("rewrite failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
