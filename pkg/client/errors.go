package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/repo-harvester/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrEmptyResult is returned when the response carries no search payload.
	// It is terminal: retrying the same query will not produce one.
	ErrEmptyResult = errors.New("search payload missing from response")

	// ErrInvalidPageSize is returned when the requested page size is outside [1, MaxPageSize].
	ErrInvalidPageSize = errors.New("page size out of range")
)

// ErrorClass represents a classification of FetchPage failures.
type ErrorClass string

const (
	// ErrorClassTransport represents non-2xx statuses, connection faults and timeouts.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassProtocol represents a GraphQL error envelope in a decodable response.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassEmpty represents a response without a search payload.
	ErrorClassEmpty ErrorClass = "empty"

	// ErrorClassInvalid represents a caller mistake such as a bad page size.
	ErrorClassInvalid ErrorClass = "invalid"
)

// Retryable reports whether the same request may be sent again.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassTransport, ErrorClassProtocol:
		return true
	default:
		return false
	}
}

// TransportError represents an HTTP-layer failure.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graphql transport error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("graphql transport error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// GraphQLError is a single entry of the GraphQL "errors" list.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// ProtocolError represents a response that decoded but reported GraphQL errors.
type ProtocolError struct {
	Errors []GraphQLError

	// Telemetry is the rateLimit block embedded in the failed response, if any.
	Telemetry *ratelimit.Telemetry
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		if ge.Type != "" {
			msgs = append(msgs, ge.Type+": "+ge.Message)
		} else {
			msgs = append(msgs, ge.Message)
		}
	}
	return fmt.Sprintf("graphql protocol error: %s", strings.Join(msgs, "; "))
}

// Classify maps an error returned by FetchPage to its ErrorClass.
// Returns an empty class for nil.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var transportErr *TransportError
	var protocolErr *ProtocolError

	switch {
	case errors.As(err, &protocolErr):
		return ErrorClassProtocol
	case errors.As(err, &transportErr):
		return ErrorClassTransport
	case errors.Is(err, ErrEmptyResult):
		return ErrorClassEmpty
	case errors.Is(err, ErrInvalidPageSize):
		return ErrorClassInvalid
	default:
		// Anything unrecognised came from below the HTTP layer.
		return ErrorClassTransport
	}
}
