package collector

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"heatvision-agent/internal/metrics"
	"heatvision-agent/internal/model"
	"heatvision-agent/internal/screen"
)

type fakeSession struct {
	valid    bool
	connects int
	// failures is the number of Connect calls that fail before one
	// succeeds, simulating an exhausted reconnect budget.
	failures int
}

func (s *fakeSession) Valid() bool { return s.valid }

func (s *fakeSession) Connect(ctx context.Context) error {
	s.connects++
	if s.failures > 0 {
		s.failures--
		return errors.New("connect attempts exhausted after 3 tries")
	}
	s.valid = true
	return nil
}

type fakeNavigator struct {
	resets  int
	ensures []string
	fail    map[string]error
}

func (n *fakeNavigator) Reset() { n.resets++ }

func (n *fakeNavigator) Ensure(ctx context.Context, target string) (model.RawCapture, error) {
	n.ensures = append(n.ensures, target)
	if err := n.fail[target]; err != nil {
		return model.RawCapture{}, err
	}
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	return model.RawCapture{Image: img, Screen: target, At: time.Now()}, nil
}

// queueEngine returns scripted recognitions in call order. Extraction runs
// single-worker in these tests, so call order matches field order.
type queueEngine struct {
	responses []string
}

func (e *queueEngine) Recognize(ctx context.Context, region image.Image, lang string, psm int) (string, error) {
	if len(e.responses) == 0 {
		return "", nil
	}
	out := e.responses[0]
	e.responses = e.responses[1:]
	return out, nil
}

func (e *queueEngine) Close() error { return nil }

type recordSink struct {
	batches   [][]model.PublishEvent
	onPublish func()
}

func (s *recordSink) Publish(ctx context.Context, events []model.PublishEvent) error {
	s.batches = append(s.batches, events)
	if s.onPublish != nil {
		s.onPublish()
	}
	return nil
}

func testProfile() *model.Profile {
	box := model.Box{X0: 10, Y0: 10, X1: 60, Y1: 30}
	return &model.Profile{
		Home:     "overview",
		Rotation: []string{"overview", "status"},
		Screens: map[string]model.ScreenLayout{
			"overview": {
				ID: "overview",
				Fields: []model.FieldDefinition{{
					Name:   "supply_temp",
					Screen: "overview",
					Box:    box,
					Rule: model.ParseRule{Numeric: &model.NumericRule{
						DecimalSep: ",",
						Min:        -40,
						Max:        120,
					}},
				}},
			},
			"status": {
				ID: "status",
				Fields: []model.FieldDefinition{{
					Name:   "mode",
					Screen: "status",
					Box:    box,
					Rule: model.ParseRule{Enum: &model.EnumRule{
						Labels:      []string{"Heizen", "Standby"},
						MaxDistance: 2,
					}},
				}},
			},
		},
	}
}

func newTestScheduler(nav *fakeNavigator, engine *queueEngine, sink Publisher) *Scheduler {
	m := metrics.New()
	logger := testLogger()
	profile := testProfile()
	extractor := NewExtractor(engine, "deu", 1, logger, m)
	agg := NewAggregator(profile.FieldNames(), 0.001, 3, 0, logger, m)
	return NewScheduler(logger, &fakeSession{valid: true}, nav, extractor, agg, sink, profile, time.Millisecond, time.Millisecond, m)
}

func TestSchedulerCyclePublishesChangesOnly(t *testing.T) {
	nav := &fakeNavigator{}
	engine := &queueEngine{responses: []string{
		"45,2", "Heizen", // cycle 1
		"45,2", "Heizen", // cycle 2: nothing changed
		"4S.2", "Heizen", // cycle 3: supply_temp garbled
	}}
	sink := &recordSink{}
	s := newTestScheduler(nav, engine, sink)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.cycle++
		s.runCycle(ctx)
	}

	if len(sink.batches) != 1 {
		t.Fatalf("expected exactly one publish batch, got %d", len(sink.batches))
	}
	if len(sink.batches[0]) != 2 {
		t.Fatalf("first cycle must publish both readings, got %d", len(sink.batches[0]))
	}

	entry, _ := s.agg.Snapshot().Get("supply_temp")
	if entry.Value.Number != 45.2 {
		t.Fatalf("garbled cycle must keep the last good value, got %v", entry.Value.Number)
	}
	if entry.Misses != 1 {
		t.Fatalf("garbled cycle must count one miss, got %d", entry.Misses)
	}

	want := []string{"overview", "status", "overview", "status", "overview", "status"}
	if len(nav.ensures) != len(want) {
		t.Fatalf("expected %d screen visits, got %d", len(want), len(nav.ensures))
	}
	for i, target := range want {
		if nav.ensures[i] != target {
			t.Fatalf("visit %d: expected %q, got %q", i, target, nav.ensures[i])
		}
	}
}

func TestSchedulerLostSessionAbortsRotation(t *testing.T) {
	nav := &fakeNavigator{fail: map[string]error{
		"overview": &screen.NavigationError{Target: "overview", Attempts: 3},
	}}
	sink := &recordSink{}
	s := newTestScheduler(nav, &queueEngine{}, sink)

	s.cycle++
	s.runCycle(context.Background())

	if len(nav.ensures) != 1 {
		t.Fatalf("a lost session must abort the rotation, visited %v", nav.ensures)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("nothing to publish after a lost rotation, got %d batches", len(sink.batches))
	}

	for _, f := range []string{"supply_temp", "mode"} {
		entry, _ := s.agg.Snapshot().Get(f)
		if entry.Misses != 1 {
			t.Fatalf("field %s must miss on an aborted rotation, got %d", f, entry.Misses)
		}
	}
}

func TestSchedulerUnreachableScreenSkipsOnlyItsFields(t *testing.T) {
	nav := &fakeNavigator{fail: map[string]error{
		"overview": errors.New("marker mismatch"),
	}}
	engine := &queueEngine{responses: []string{"Heizen"}}
	sink := &recordSink{}
	s := newTestScheduler(nav, engine, sink)

	s.cycle++
	s.runCycle(context.Background())

	if len(nav.ensures) != 2 {
		t.Fatalf("a plain navigation error must not abort the rotation, visited %v", nav.ensures)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("expected the reachable screen's reading, got %v", sink.batches)
	}
	if sink.batches[0][0].Path != "mode" {
		t.Fatalf("unexpected event path %q", sink.batches[0][0].Path)
	}
}

func TestSchedulerCooldownAfterExhaustedReconnect(t *testing.T) {
	nav := &fakeNavigator{}
	engine := &queueEngine{responses: []string{"45,2", "Heizen"}}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordSink{onPublish: cancel}

	m := metrics.New()
	logger := testLogger()
	profile := testProfile()
	session := &fakeSession{valid: false, failures: 2}
	extractor := NewExtractor(engine, "deu", 1, logger, m)
	agg := NewAggregator(profile.FieldNames(), 0.001, 3, 0, logger, m)
	s := NewScheduler(logger, session, nav, extractor, agg, sink, profile, time.Millisecond, time.Millisecond, m)

	// Two exhausted reconnects must not terminate the loop: each enters
	// the cooldown and tries again until the console comes back.
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run must exit cleanly on cancellation: %v", err)
	}
	if session.connects != 3 {
		t.Fatalf("expected two failed connects and one success, got %d", session.connects)
	}
	if nav.resets != 1 {
		t.Fatalf("navigator must reset only after the successful reconnect, got %d", nav.resets)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected one publish after the console came back, got %d", len(sink.batches))
	}
}

func TestSchedulerRunReconnectsInvalidSession(t *testing.T) {
	nav := &fakeNavigator{}
	engine := &queueEngine{responses: []string{"45,2", "Heizen"}}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordSink{onPublish: cancel}

	m := metrics.New()
	logger := testLogger()
	profile := testProfile()
	session := &fakeSession{valid: false}
	extractor := NewExtractor(engine, "deu", 1, logger, m)
	agg := NewAggregator(profile.FieldNames(), 0.001, 3, 0, logger, m)
	s := NewScheduler(logger, session, nav, extractor, agg, sink, profile, time.Millisecond, time.Millisecond, m)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("run must exit cleanly on cancellation: %v", err)
	}
	if session.connects != 1 {
		t.Fatalf("expected one reconnect, got %d", session.connects)
	}
	if nav.resets != 1 {
		t.Fatalf("navigator must reset after reconnect, got %d", nav.resets)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected one publish before cancellation, got %d", len(sink.batches))
	}
}
