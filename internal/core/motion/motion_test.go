package motion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aeell/HomeEyeView/internal/core/recording"
	"periph.io/x/periph/conn/gpio"
)

type fakeStarter struct {
	mu        sync.Mutex
	recording bool
	starts    int
	last      time.Duration
}

func (f *fakeStarter) Start(_ context.Context, d time.Duration, origin recording.Origin) (*recording.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		return nil, recording.ErrAlreadyRecording
	}
	f.recording = true
	f.starts++
	f.last = d
	return &recording.Session{Origin: origin, Duration: d, Active: true}, nil
}

func (f *fakeStarter) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func TestTriggerOnEdge(t *testing.T) {
	ctx := context.Background()
	var s fakeStarter
	tr := NewTrigger(&s, 3*time.Minute, false)

	if tr.OnEdge(ctx) {
		t.Fatal("disarmed trigger started recording")
	}
	if !tr.Toggle() || !tr.Armed() {
		t.Fatal("expected armed after toggle")
	}
	if !tr.OnEdge(ctx) {
		t.Fatal("expected recording to start")
	}
	if s.last != 3*time.Minute {
		t.Fatalf("duration %v", s.last)
	}
	if tr.OnEdge(ctx) {
		t.Fatal("edge while recording started another recording")
	}
	if s.count() != 1 {
		t.Fatalf("starts %d", s.count())
	}

	tr.Disarm()
	if tr.Armed() || tr.Toggle() != true {
		t.Fatal("toggle state mismatch")
	}
}

func TestTriggerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var s fakeStarter
	tr := NewTrigger(&s, time.Minute, true)
	go tr.Run(ctx)

	for range 5 {
		tr.Edge()
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if s.count() != 1 {
		t.Fatalf("starts %d", s.count())
	}
}

type fakePin struct {
	gpio.PinIO
	edges  chan struct{}
	halted atomic.Bool
}

func (p *fakePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-p.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *fakePin) Halt() error {
	p.halted.Store(true)
	return nil
}

type countSink struct {
	n atomic.Int32
}

func (c *countSink) Edge() { c.n.Add(1) }

func TestGPIODebounce(t *testing.T) {
	pin := fakePin{edges: make(chan struct{})}
	var sink countSink
	g := newGPIOSource(&pin, 2*time.Second, &sink)

	base := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, 500 * time.Millisecond, 3 * time.Second}
	var i int
	g.now = func() time.Time {
		d := offsets[i]
		i++
		return base.Add(d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	for range offsets {
		pin.edges <- struct{}{}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("gpio source did not stop")
	}
	if got := sink.n.Load(); got != 2 {
		t.Fatalf("edges %d", got)
	}
	if !pin.halted.Load() {
		t.Fatal("pin not halted")
	}
}
