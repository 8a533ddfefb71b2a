package screen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"heatvision-agent/internal/model"
)

// fakeConsole simulates the remote UI: clicking a known coordinate switches
// the visible screen.
type fakeConsole struct {
	images      map[string]image.Image
	current     string
	clicks      map[[2]int]string
	captures    int
	invalidated bool
}

func (c *fakeConsole) Capture(ctx context.Context) (model.RawCapture, error) {
	c.captures++
	return model.RawCapture{Image: c.images[c.current], At: time.Now()}, nil
}

func (c *fakeConsole) SendKey(code uint32) error { return nil }

func (c *fakeConsole) SendPointer(x, y int, button uint8) error {
	if button == 0 {
		return nil
	}
	if to, ok := c.clicks[[2]int{x, y}]; ok {
		c.current = to
	}
	return nil
}

func (c *fakeConsole) Invalidate() { c.invalidated = true }

func quadrantImage(bright func(x, y int) bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if bright(x, y) {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func navTestSetup(t *testing.T) (*fakeConsole, *model.Profile) {
	t.Helper()

	markerBox := model.Box{X0: 0, Y0: 0, X1: 64, Y1: 64}
	homeImg := quadrantImage(func(x, y int) bool { return y < 32 })
	statsImg := quadrantImage(func(x, y int) bool { return x < 32 })

	spec := func(img image.Image) model.MarkerSpec {
		fp, err := FingerprintRegion(img, markerBox)
		if err != nil {
			t.Fatalf("fingerprint setup: %v", err)
		}
		return model.MarkerSpec{Box: markerBox, Hash: fp.Hash, MeanLuma: fp.MeanLuma, Tolerance: 2}
	}

	profile := &model.Profile{
		Home:     "home",
		Rotation: []string{"home", "stats"},
		Screens: map[string]model.ScreenLayout{
			"home":  {ID: "home", Marker: spec(homeImg)},
			"stats": {ID: "stats", Marker: spec(statsImg)},
		},
		Edges: []model.Edge{
			{From: "home", To: "stats", Inputs: []model.Input{{Kind: model.InputPointer, X: 20, Y: 20, Button: 1}}},
			{From: model.EdgeWildcard, To: "home", Inputs: []model.Input{{Kind: model.InputPointer, X: 10, Y: 10, Button: 1}}},
		},
	}

	console := &fakeConsole{
		images:  map[string]image.Image{"home": homeImg, "stats": statsImg},
		current: "home",
		clicks: map[[2]int]string{
			{20, 20}: "stats",
			{10, 10}: "home",
		},
	}
	return console, profile
}

func navLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNavigatorEnsureTraversesGraph(t *testing.T) {
	console, profile := navTestSetup(t)
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	cap, err := nav.Ensure(context.Background(), "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap.Screen != "stats" {
		t.Fatalf("expected a stats capture, got %q", cap.Screen)
	}
	if nav.Current() != "stats" || nav.State() != StateSettled {
		t.Fatalf("unexpected navigator position: %s/%s", nav.Current(), nav.State())
	}
}

func TestNavigatorReVerifiesSettledScreen(t *testing.T) {
	console, profile := navTestSetup(t)
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	if _, err := nav.Ensure(context.Background(), "home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The UI idled back to another screen between cycles; Ensure must
	// notice instead of trusting its own position.
	console.current = "stats"
	if _, err := nav.Ensure(context.Background(), "home"); err == nil {
		t.Fatalf("expected marker mismatch after UI drift")
	}
}

func TestNavigatorLocatesUnknownStartScreen(t *testing.T) {
	console, profile := navTestSetup(t)
	console.current = "stats"
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	cap, err := nav.Ensure(context.Background(), "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap.Screen != "stats" {
		t.Fatalf("expected the visible screen to be identified, got %q", cap.Screen)
	}
}

func TestNavigatorFallsBackToHomeWhenUnrecognized(t *testing.T) {
	console, profile := navTestSetup(t)
	console.images["limbo"] = image.NewGray(image.Rect(0, 0, 64, 64))
	console.current = "limbo"
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	cap, err := nav.Ensure(context.Background(), "home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap.Screen != "home" {
		t.Fatalf("expected fallback route to home, got %q", cap.Screen)
	}
}

func TestNavigatorLostAfterAttemptBudget(t *testing.T) {
	console, profile := navTestSetup(t)
	// The stats click lands nowhere, so its marker never appears.
	delete(console.clicks, [2]int{20, 20})
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	_, err := nav.Ensure(context.Background(), "stats")
	if err == nil {
		t.Fatalf("expected navigation failure")
	}
	if !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
	var nerr *NavigationError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NavigationError, got %T", err)
	}
	if nerr.Attempts != 2 {
		t.Fatalf("expected 2 marker checks, got %d", nerr.Attempts)
	}
	if !console.invalidated {
		t.Fatalf("a lost navigator must invalidate the session")
	}
	if nav.State() != StateLost {
		t.Fatalf("expected lost state, got %s", nav.State())
	}

	// While lost, further navigation is refused without touching the wire.
	captures := console.captures
	if _, err := nav.Ensure(context.Background(), "home"); err == nil {
		t.Fatalf("a lost navigator must refuse to navigate")
	}
	if console.captures != captures {
		t.Fatalf("lost navigator must not capture")
	}
}

func TestNavigatorUnroutableScreenInvalidatesSession(t *testing.T) {
	console, profile := navTestSetup(t)
	// A screen the profile knows but no edge reaches.
	islandImg := quadrantImage(func(x, y int) bool { return x >= 32 && y >= 32 })
	fp, err := FingerprintRegion(islandImg, model.Box{X0: 0, Y0: 0, X1: 64, Y1: 64})
	if err != nil {
		t.Fatalf("fingerprint setup: %v", err)
	}
	profile.Screens["island"] = model.ScreenLayout{
		ID:     "island",
		Marker: model.MarkerSpec{Box: model.Box{X0: 0, Y0: 0, X1: 64, Y1: 64}, Hash: fp.Hash, MeanLuma: fp.MeanLuma, Tolerance: 2},
	}
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	if _, err := nav.Ensure(context.Background(), "home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = nav.Ensure(context.Background(), "island")
	if !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost for an unroutable screen, got %v", err)
	}
	if nav.State() != StateLost {
		t.Fatalf("expected lost state, got %s", nav.State())
	}
	if !console.invalidated {
		t.Fatalf("losing the route must invalidate the session so the scheduler reconnects")
	}
}

func TestNavigatorStopsWaitingWhenContextEnds(t *testing.T) {
	console, profile := navTestSetup(t)
	profile.Edges[0].Inputs[0].Wait = time.Hour
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	if _, err := nav.Ensure(context.Background(), "home"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := nav.Ensure(ctx, "stats")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected the context deadline, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Ensure kept sleeping past the context deadline")
	}
	if nav.State() == StateLost {
		t.Fatalf("an expired context must not mark the navigator lost")
	}
}

func TestNavigatorResetRestoresOperation(t *testing.T) {
	console, profile := navTestSetup(t)
	delete(console.clicks, [2]int{20, 20})
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())

	if _, err := nav.Ensure(context.Background(), "stats"); err == nil {
		t.Fatalf("expected navigation failure")
	}

	console.clicks[[2]int{20, 20}] = "stats"
	nav.Reset()
	if nav.State() != StateDisconnected {
		t.Fatalf("reset must forget the position, got %s", nav.State())
	}
	if _, err := nav.Ensure(context.Background(), "stats"); err != nil {
		t.Fatalf("navigation must work again after reset: %v", err)
	}
}

func TestNavigatorUnknownScreen(t *testing.T) {
	console, profile := navTestSetup(t)
	nav := NewNavigator(console, profile, 2, time.Millisecond, navLogger())
	if _, err := nav.Ensure(context.Background(), "boiler_room"); err == nil {
		t.Fatalf("expected an error for an undefined screen")
	}
}
