package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error surfaced by the import and refresh pipelines
// matches exactly one of these through errors.Is.
var (
	ErrParse           = errors.New("parse error")
	ErrLookupFailure   = errors.New("lookup failure")
	ErrTickerNotFound  = fmt.Errorf("%w: ticker not found", ErrLookupFailure)
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrAccounting      = errors.New("accounting error")
	ErrInvalidInput    = fmt.Errorf("%w: invalid input", ErrAccounting)
	ErrPersistence     = errors.New("persistence error")
	ErrPartialRefresh  = errors.New("partial refresh failure")
)

// RowError attaches a CSV row and transaction number to an error
type RowError struct {
	Err           error
	Row           int
	TransactionNo int64
}

func (e *RowError) Error() string {
	if e.TransactionNo > 0 {
		return fmt.Sprintf("row %d (transaction %d): %v", e.Row, e.TransactionNo, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// SymbolError attaches a symbol to an error
type SymbolError struct {
	Err    error
	Symbol string
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// ImportError aggregates every failure that aborted an import
type ImportError struct {
	Errs []error
}

func (e *ImportError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("import aborted with %d error(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As
func (e *ImportError) Unwrap() []error { return e.Errs }

// PartialRefreshError lists every ticker whose price refresh failed
type PartialRefreshError struct {
	Failures []SymbolError
}

func (e *PartialRefreshError) Error() string {
	symbols := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		symbols = append(symbols, f.Error())
	}
	return fmt.Sprintf("%v: %d ticker(s) failed: %s", ErrPartialRefresh, len(e.Failures), strings.Join(symbols, "; "))
}

// Symbols returns the failing symbols in report order
func (e *PartialRefreshError) Symbols() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Symbol)
	}
	return out
}

func (e *PartialRefreshError) Is(target error) bool { return target == ErrPartialRefresh }

func (e *PartialRefreshError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for i := range e.Failures {
		errs = append(errs, &e.Failures[i])
	}
	return errs
}
