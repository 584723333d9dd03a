package ingest

import (
	"errors"
	"fmt"
)

// ErrorKind tags where in the pipeline a failure happened.
type ErrorKind string

const (
	KindFetch     ErrorKind = "fetch"
	KindParse     ErrorKind = "parse"
	KindEmbedding ErrorKind = "embedding"
	KindStore     ErrorKind = "store"
)

var (
	// ErrEmptyEmbedding is returned when the producer yields a zero-length vector.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrStoreUnavailable marks items skipped after the store circuit opened.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrSearcherRequired = errors.New("searcher required")
	ErrProducerRequired = errors.New("vector producer required")
	ErrStoreRequired    = errors.New("store required")
	ErrQueryRequired    = errors.New("search query required")
)

// ItemError is a failure isolated to one search result.
type ItemError struct {
	Index   int
	VideoID string
	Kind    ErrorKind
	Err     error
}

func (e *ItemError) Error() string {
	id := e.VideoID
	if id == "" {
		id = fmt.Sprintf("#%d", e.Index)
	}
	return fmt.Sprintf("item %s: %s: %v", id, e.Kind, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// CycleError aborts a cycle. Stage is KindFetch or KindStore.
type CycleError struct {
	Stage ErrorKind
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle aborted at %s: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }
