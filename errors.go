package chunked

import (
	"errors"
	"fmt"
)

// Kind classifies a ParseError so callers can map it to a status code and a
// keep-alive decision without string-matching error text.
type Kind int

const (
	// KindBadChunkSizeData covers a chunk-size line longer than 10 bytes
	// without a terminator, a non-hex digit where a hex digit is expected,
	// or a chunk-size value that overflows a 32-bit signed integer.
	KindBadChunkSizeData Kind = iota
	// KindBadChunkSuffix covers the two bytes following chunk-data not
	// being CRLF.
	KindBadChunkSuffix
	// KindUnexpectedEndOfRequestContent covers the transport reporting
	// completion before the parser reached Complete.
	KindUnexpectedEndOfRequestContent
	// KindRequestBodyTimeout covers the timeout controller reporting the
	// request deadline elapsed during a pump read.
	KindRequestBodyTimeout
	// KindMaxBodySizeExceeded covers the consumed-bytes accumulator
	// exceeding the configured maximum.
	KindMaxBodySizeExceeded
	// KindConnectionAborted covers a transport error or peer reset.
	KindConnectionAborted
)

func (k Kind) String() string {
	switch k {
	case KindBadChunkSizeData:
		return "BadChunkSizeData"
	case KindBadChunkSuffix:
		return "BadChunkSuffix"
	case KindUnexpectedEndOfRequestContent:
		return "UnexpectedEndOfRequestContent"
	case KindRequestBodyTimeout:
		return "RequestBodyTimeout"
	case KindMaxBodySizeExceeded:
		return "MaxBodySizeExceeded"
	case KindConnectionAborted:
		return "ConnectionAborted"
	default:
		return "Unknown"
	}
}

// ParseError is the error shape the core raises for the kinds above.
// Errors from collaborators (a TrailerParser, the payload sink, a canceled
// context) pass through unwrapped. The pump captures at most one error of
// either sort and reports it once via the BodyPipe's writer completion; it
// is never retried.
type ParseError struct {
	Kind Kind
	Op   string
	Err  error
}

func newParseError(kind Kind, op string, cause error) *ParseError {
	return &ParseError{Kind: kind, Op: op, Err: cause}
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("chunked: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("chunked: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target names the same Kind, so callers can write
// errors.Is(err, chunked.ErrRequestBodyTimeout) against a sentinel.
func (e *ParseError) Is(target error) bool {
	var pe *ParseError
	if errors.As(target, &pe) {
		return pe.Kind == e.Kind
	}
	return false
}

// Sentinels usable with errors.Is; their Err and Op fields are empty and
// exist only to carry a Kind for comparison.
var (
	ErrBadChunkSizeData              = &ParseError{Kind: KindBadChunkSizeData}
	ErrBadChunkSuffix                = &ParseError{Kind: KindBadChunkSuffix}
	ErrUnexpectedEndOfRequestContent = &ParseError{Kind: KindUnexpectedEndOfRequestContent}
	ErrRequestBodyTimeout            = &ParseError{Kind: KindRequestBodyTimeout}
	ErrMaxBodySizeExceeded           = &ParseError{Kind: KindMaxBodySizeExceeded}
	ErrConnectionAborted             = &ParseError{Kind: KindConnectionAborted}
)

// ErrReadCanceled is returned by BodyPipe.Read (and surfaces through
// BodyReader.ReadAsync) when a suspended read is woken by
// CancelPendingRead. It is not a parse error: it carries no Kind and never
// completes the pipe.
var ErrReadCanceled = errors.New("chunked: pending read canceled")

// ErrNotSupported is returned by the BodyReader operations that spec.md
// declares for interface parity but intentionally does not implement:
// CancelPendingRead and OnWriterCompleted.
var ErrNotSupported = errors.New("chunked: operation not supported by BodyReader")
