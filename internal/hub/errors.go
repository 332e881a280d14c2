package hub

import "errors"

var (
	ErrSessionClosed = errors.New("session closed")
	ErrNilConn       = errors.New("connection cannot be nil")
)
