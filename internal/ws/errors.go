package ws

import "errors"

var (
	// ErrConnectionClosed is returned for any operation on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrWriteTimeout is returned when the outbound buffer stays full past
	// the write timeout, indicating a stalled client.
	ErrWriteTimeout = errors.New("write timeout")
)
