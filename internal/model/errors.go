package model

import (
	"errors"
	"fmt"
)

// Request errors, matched by callers with errors.Is.
var (
	// ErrInsufficientHistory means fewer bars exist than the longest
	// indicator window needs. Not retried.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrUpstreamFetch wraps any failure of the external market-data source:
	// transport errors, non-2xx responses, malformed payloads, open breaker.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrUnknownInterval = errors.New("unknown interval")

	// ErrStaleCacheRead reports a cache entry whose validity predicate
	// disagrees with its content. Readers drop the entry and recompute.
	ErrStaleCacheRead = errors.New("stale cache read")
)

func unknownSymbol(symbol string) error {
	return fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
}
