package vnc

import (
	"context"
	"fmt"
	"image"
)

// ConnectError wraps any failure to establish a console session, including
// dial timeouts and authentication rejections. It counts against the
// reconnect backoff policy.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Transport opens console sessions. The wire protocol is not the agent's
// concern beyond this boundary.
type Transport interface {
	Dial(ctx context.Context, addr, password string) (Conn, error)
}

// Conn is one live screen-sharing session. Inputs are fire-and-forget:
// there is no confirmation the UI reacted, verification is the navigator's
// job.
type Conn interface {
	Capture(ctx context.Context) (image.Image, error)
	SendKey(code uint32) error
	SendPointer(x, y int, button uint8) error
	Close() error
}
