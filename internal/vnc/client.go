package vnc

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net"
	"sync"
	"time"

	govnc "github.com/mitchellh/go-vnc"
)

// RFBTransport dials RFB (VNC) servers.
type RFBTransport struct {
	// CaptureTimeout bounds how long Capture waits for a framebuffer
	// update when the caller's context has no deadline.
	CaptureTimeout time.Duration
}

func NewRFBTransport() *RFBTransport {
	return &RFBTransport{CaptureTimeout: 10 * time.Second}
}

func (t *RFBTransport) Dial(ctx context.Context, addr, password string) (Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	// The RFB handshake has no context support; bound it with the conn
	// deadline instead.
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}

	msgCh := make(chan govnc.ServerMessage, 8)
	cfg := &govnc.ClientConfig{ServerMessageCh: msgCh}
	if password != "" {
		cfg.Auth = []govnc.ClientAuth{&govnc.PasswordAuth{Password: password}}
	}

	cc, err := govnc.Client(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	_ = nc.SetDeadline(time.Time{})

	return &rfbConn{
		cc:             cc,
		msgCh:          msgCh,
		fb:             image.NewRGBA(image.Rect(0, 0, int(cc.FrameBufferWidth), int(cc.FrameBufferHeight))),
		captureTimeout: t.CaptureTimeout,
	}, nil
}

type rfbConn struct {
	mu             sync.Mutex
	cc             *govnc.ClientConn
	msgCh          chan govnc.ServerMessage
	fb             *image.RGBA
	captureTimeout time.Duration
}

// Capture requests a full (non-incremental) framebuffer update and returns
// a copy of the assembled frame.
func (c *rfbConn) Capture(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.cc.FrameBufferWidth
	h := c.cc.FrameBufferHeight
	if err := c.cc.FramebufferUpdateRequest(false, 0, 0, w, h); err != nil {
		return nil, fmt.Errorf("framebuffer update request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.captureTimeout)
		defer cancel()
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("framebuffer update: %w", ctx.Err())
		case msg, ok := <-c.msgCh:
			if !ok {
				return nil, fmt.Errorf("framebuffer channel closed")
			}
			upd, isUpdate := msg.(*govnc.FramebufferUpdateMessage)
			if !isUpdate {
				continue
			}
			c.applyUpdate(upd)
			out := image.NewRGBA(c.fb.Rect)
			copy(out.Pix, c.fb.Pix)
			return out, nil
		}
	}
}

func (c *rfbConn) applyUpdate(upd *govnc.FramebufferUpdateMessage) {
	pf := c.cc.PixelFormat
	for _, rect := range upd.Rectangles {
		raw, ok := rect.Enc.(*govnc.RawEncoding)
		if !ok {
			continue
		}
		i := 0
		for y := 0; y < int(rect.Height); y++ {
			for x := 0; x < int(rect.Width); x++ {
				if i >= len(raw.Colors) {
					return
				}
				px := raw.Colors[i]
				i++
				c.fb.SetRGBA(int(rect.X)+x, int(rect.Y)+y, color.RGBA{
					R: scaleColor(px.R, pf.RedMax),
					G: scaleColor(px.G, pf.GreenMax),
					B: scaleColor(px.B, pf.BlueMax),
					A: 0xff,
				})
			}
		}
	}
}

func scaleColor(v, max uint16) uint8 {
	if max == 0 {
		return uint8(v)
	}
	return uint8(uint32(v) * 255 / uint32(max))
}

func (c *rfbConn) SendKey(code uint32) error {
	if err := c.cc.KeyEvent(code, true); err != nil {
		return fmt.Errorf("key down %#x: %w", code, err)
	}
	if err := c.cc.KeyEvent(code, false); err != nil {
		return fmt.Errorf("key up %#x: %w", code, err)
	}
	return nil
}

// SendPointer moves to the coordinates and performs one press/release with
// the given button mask.
func (c *rfbConn) SendPointer(x, y int, button uint8) error {
	px, py := uint16(x), uint16(y)
	if err := c.cc.PointerEvent(0, px, py); err != nil {
		return fmt.Errorf("pointer move: %w", err)
	}
	if err := c.cc.PointerEvent(govnc.ButtonMask(button), px, py); err != nil {
		return fmt.Errorf("pointer press: %w", err)
	}
	if err := c.cc.PointerEvent(0, px, py); err != nil {
		return fmt.Errorf("pointer release: %w", err)
	}
	return nil
}

func (c *rfbConn) Close() error {
	return c.cc.Close()
}
