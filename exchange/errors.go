package exchange

import "fmt"

// TransportError wraps any network/transport-level failure talking to the
// exchange (connection refused, timeout, TLS failure). Distinguished from
// ProtocolError so callers can retry transport errors but not protocol ones.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimited is returned when the exchange rejects a request with a
// rate-limit status; Op identifies which call was throttled.
type RateLimited struct {
	Op         string
	RetryAfter string
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("exchange rate limited during %s (retry after %s)", e.Op, e.RetryAfter)
}

// ProtocolError is returned when the exchange responds with a well-formed
// but rejecting answer (bad symbol, insufficient margin, invalid order
// params) — not worth retrying without changing the request.
type ProtocolError struct {
	Op      string
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("exchange protocol error during %s: code=%d %s", e.Op, e.Code, e.Message)
}
