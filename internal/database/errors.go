package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nfrund/roomchat/internal/domain"
)

// Database-level errors that can be checked using errors.Is().
var (
	// ErrNotConnected is returned when no usable connection exists.
	ErrNotConnected = errors.New("database not connected")
	// ErrQueryFailed is returned when the server rejects a query.
	ErrQueryFailed = errors.New("query execution failed")
	// ErrUnexpectedResult is returned when a result cannot be decoded.
	ErrUnexpectedResult = errors.New("unexpected query result")

	errNoRows = errors.New("statement returned no rows")
)

// DBError represents a database error with additional context.
type DBError struct {
	// The underlying error that was returned by the database driver.
	err error
	// Additional context about where the error occurred.
	context string
	// The query that was being executed when the error occurred.
	query string
	// Parameter names used with the query; values are omitted to keep message text out of logs.
	params []string
}

// NewDBError creates a new DBError with the given error and context.
func NewDBError(err error, context string) *DBError {
	return &DBError{
		err:     err,
		context: context,
	}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

// WithParams records the parameter names used with the query.
func (e *DBError) WithParams(params map[string]any) *DBError {
	e.params = e.params[:0]
	for k := range params {
		e.params = append(e.params, k)
	}
	return e
}

// Error returns the error message.
func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s (query: %s)", msg, e.query)
	}
	if len(e.params) > 0 {
		msg = fmt.Sprintf("%s (params: %s)", msg, strings.Join(e.params, ","))
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// Query returns the query that failed, if recorded.
func (e *DBError) Query() string {
	return e.query
}

// classifyRead maps a failed read into the domain taxonomy. Every read failure
// is a reachability problem from the caller's point of view.
func classifyRead(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsClassified(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
}

// classifyWrite maps a failed write into the domain taxonomy. Transport
// failures are BackendUnavailable; anything the server answered is a rejection.
func classifyWrite(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsClassified(err) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrNotConnected) || isConnectionError(err) {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrWriteRejected, err)
}
