package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"heatvision-agent/internal/model"
)

// State is the navigator's position knowledge.
type State string

const (
	// StateDisconnected means the session was (re)established but the
	// visible screen has not been identified yet.
	StateDisconnected State = "disconnected"
	StateNavigating   State = "navigating"
	StateSettled      State = "settled"
	// StateLost means marker verification failed repeatedly; the session
	// must be reconnected before navigating again.
	StateLost State = "lost"
)

// ErrLost is reported when marker verification never settles within the
// attempt budget. The caller skips the screen's fields and reconnects.
var ErrLost = errors.New("navigation lost")

// NavigationError carries the screen that could not be verified.
type NavigationError struct {
	Target   string
	Attempts int
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("screen %q did not settle after %d marker checks", e.Target, e.Attempts)
}

func (e *NavigationError) Unwrap() error { return ErrLost }

// Session is the slice of the session manager the navigator drives.
type Session interface {
	Capture(ctx context.Context) (model.RawCapture, error)
	SendKey(code uint32) error
	SendPointer(x, y int, button uint8) error
	Invalidate()
}

// Navigator drives the console UI to a requested screen and verifies
// arrival with marker fingerprints, never full OCR.
type Navigator struct {
	session  Session
	graph    *Graph
	profile  *model.Profile
	attempts int
	// recheckDelay is the settle time between failed marker checks.
	recheckDelay time.Duration
	logger       *slog.Logger

	state   State
	current string
}

func NewNavigator(session Session, profile *model.Profile, attempts int, recheckDelay time.Duration, logger *slog.Logger) *Navigator {
	if attempts <= 0 {
		attempts = 3
	}
	if recheckDelay <= 0 {
		recheckDelay = 500 * time.Millisecond
	}
	return &Navigator{
		session:      session,
		graph:        NewGraph(profile.Edges),
		profile:      profile,
		attempts:     attempts,
		recheckDelay: recheckDelay,
		logger:       logger,
		state:        StateDisconnected,
	}
}

func (n *Navigator) State() State    { return n.state }
func (n *Navigator) Current() string { return n.current }

// Reset is called after a reconnect: position knowledge is gone.
func (n *Navigator) Reset() {
	n.state = StateDisconnected
	n.current = ""
}

// Ensure drives the UI to the target screen and returns a verified capture
// of it. On repeated marker mismatch it transitions to Lost, invalidates
// the session and returns a NavigationError.
func (n *Navigator) Ensure(ctx context.Context, target string) (model.RawCapture, error) {
	layout, ok := n.profile.Screens[target]
	if !ok {
		return model.RawCapture{}, fmt.Errorf("unknown screen %q", target)
	}

	if n.state == StateLost {
		return model.RawCapture{}, &NavigationError{Target: target, Attempts: 0}
	}
	if n.state == StateDisconnected {
		if err := n.locate(ctx); err != nil {
			return model.RawCapture{}, err
		}
	}

	if n.current != target {
		path, err := n.graph.Path(n.current, target)
		if err != nil {
			n.lose(target, 0)
			return model.RawCapture{}, fmt.Errorf("%w: %v", ErrLost, err)
		}
		n.state = StateNavigating
		for _, edge := range path {
			if err := n.traverse(ctx, edge); err != nil {
				return model.RawCapture{}, err
			}
		}
	}

	// Re-verify even when already settled there: the UI may have timed out
	// back to another screen between cycles.
	cap, err := n.verify(ctx, layout)
	if err != nil {
		return model.RawCapture{}, err
	}
	n.state = StateSettled
	n.current = target
	return cap, nil
}

// wakePoint is a harmless pointer position used to wake a sleeping display
// after connect; button 0 moves without clicking.
var wakePoint = struct{ X, Y int }{100, 100}

// locate identifies the screen visible right after connecting. If no marker
// matches, it falls back to the wildcard path to the home screen.
func (n *Navigator) locate(ctx context.Context) error {
	if err := n.session.SendPointer(wakePoint.X, wakePoint.Y, 0); err != nil {
		return err
	}
	if err := n.pause(ctx, n.recheckDelay); err != nil {
		return err
	}

	cap, err := n.session.Capture(ctx)
	if err != nil {
		return err
	}
	for id, layout := range n.profile.Screens {
		fp, fpErr := FingerprintRegion(cap.Image, layout.Marker.Box)
		if fpErr != nil {
			continue
		}
		if fp.Matches(layout.Marker) {
			n.state = StateSettled
			n.current = id
			n.logger.Debug("screen identified after connect", "screen", id)
			return nil
		}
	}

	home := n.profile.Screens[n.profile.Home]
	path, err := n.graph.Path(model.EdgeWildcard, n.profile.Home)
	if err != nil {
		n.lose(n.profile.Home, 0)
		return fmt.Errorf("%w: no route to home screen", ErrLost)
	}
	n.state = StateNavigating
	for _, edge := range path {
		if err := n.replay(ctx, edge.Inputs); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.lose(edge.To, 0)
			return fmt.Errorf("%w: %v", ErrLost, err)
		}
	}
	if _, err := n.verify(ctx, home); err != nil {
		return err
	}
	n.state = StateSettled
	n.current = n.profile.Home
	return nil
}

// traverse replays one edge's inputs and verifies arrival at its
// destination.
func (n *Navigator) traverse(ctx context.Context, edge model.Edge) error {
	if err := n.replay(ctx, edge.Inputs); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.lose(edge.To, 0)
		return fmt.Errorf("%w: %v", ErrLost, err)
	}
	layout := n.profile.Screens[edge.To]
	if _, err := n.verify(ctx, layout); err != nil {
		return err
	}
	n.current = edge.To
	return nil
}

func (n *Navigator) replay(ctx context.Context, inputs []model.Input) error {
	for _, in := range inputs {
		var err error
		switch in.Kind {
		case model.InputPointer:
			err = n.session.SendPointer(in.X, in.Y, in.Button)
		case model.InputKey:
			err = n.session.SendKey(in.Key)
		default:
			err = fmt.Errorf("unknown input kind %q", in.Kind)
		}
		if err != nil {
			return err
		}
		if err := n.pause(ctx, in.Wait); err != nil {
			return err
		}
	}
	return nil
}

// verify captures until the screen's marker fingerprint matches, up to the
// attempt budget.
func (n *Navigator) verify(ctx context.Context, layout model.ScreenLayout) (model.RawCapture, error) {
	for attempt := 1; ; attempt++ {
		cap, err := n.session.Capture(ctx)
		if err != nil {
			n.lose(layout.ID, attempt)
			return model.RawCapture{}, fmt.Errorf("%w: %v", ErrLost, err)
		}
		fp, err := FingerprintRegion(cap.Image, layout.Marker.Box)
		if err == nil && fp.Matches(layout.Marker) {
			cap.Screen = layout.ID
			return cap, nil
		}

		if attempt >= n.attempts {
			n.logger.Warn("marker never settled", "screen", layout.ID, "attempts", attempt)
			n.lose(layout.ID, attempt)
			return model.RawCapture{}, &NavigationError{Target: layout.ID, Attempts: attempt}
		}
		if err := n.pause(ctx, n.recheckDelay); err != nil {
			return model.RawCapture{}, err
		}
	}
}

// pause waits for the settle delay unless the context ends first.
func (n *Navigator) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// lose abandons position tracking and invalidates the session so the
// scheduler reconnects; Reset is the only way back to navigating.
func (n *Navigator) lose(target string, attempts int) {
	n.state = StateLost
	n.current = ""
	n.session.Invalidate()
	n.logger.Warn("navigator lost", "target", target, "attempts", attempts)
}
