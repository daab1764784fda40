// Package chunked implements a streaming decoder for HTTP/1.1 chunked
// transfer-coding request bodies (RFC 7230 §4.1, historically RFC 2616
// §3.6.1).
//
// The decoder reads from a connection's transport, drives a byte-exact
// chunk-framing state machine, and feeds the decoded body onto a bounded
// internal pipe that application handlers read from. It enforces
// back-pressure (the pipe pauses the producer the instant the consumer
// falls behind by even one byte), per-request body-size limits, and
// request timeouts, and it coordinates start/drain/stop with the owning
// connection's request lifecycle.
//
// Out of scope: parsing request headers (trailer headers are delegated to
// a TrailerParser collaborator), transport I/O and TLS, routing and
// application dispatch, and response (as opposed to request) bodies.
package chunked

import "time"

// DefaultDrainTimeout bounds how long Decoder.Consume will read-and-discard
// an unread body before giving up; on expiry it logs a drain-timeout line
// and returns nil without flagging the connection.
const DefaultDrainTimeout = 5 * time.Second

// maxChunkSizeLineLen is the maximum number of bytes (including the
// terminating CRLF) allowed in a chunk-size line before BadChunkSizeData is
// raised. RFC 7230 allows chunk extensions of unbounded length on the same
// line in principle, but this bound applies only to the chunk-size digits
// themselves per spec; the chunk-extension tail is scanned separately in
// ModeExtension and is not subject to this cap.
const maxChunkSizeLineLen = 10

// maxChunkSize is the largest chunk-size value accepted: 0x7FFFFFFF, i.e.
// 8 hex digits fit in a 32-bit signed integer.
const maxChunkSize = 0x7FFFFFFF
