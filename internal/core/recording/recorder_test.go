package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aeell/HomeEyeView/internal/core/camera"
)

type staticFrames struct {
	f *camera.Frame
}

func (s staticFrames) Latest() *camera.Frame { return s.f }

type fakeSink struct {
	path     string
	writes   atomic.Int64
	closes   atomic.Int64
	writeErr error
}

func (s *fakeSink) Write(*camera.Frame) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes.Add(1)
	return nil
}

func (s *fakeSink) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *fakeSink) Path() string { return s.path }

type sinkRecorder struct {
	mu    sync.Mutex
	sinks []*fakeSink
	err   error
}

func (r *sinkRecorder) factory(path string, _, _, _ int) (Sink, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := fakeSink{path: path}
	r.sinks = append(r.sinks, &s)
	return &s, nil
}

func newTestRecorder(t *testing.T, sr *sinkRecorder, opts ...RecorderOption) *Recorder {
	t.Helper()
	f := camera.NewFrame(32, 24, camera.OrderRGB)
	cfg := RecorderConfig{
		StorageDir:  t.TempDir(),
		Width:       16,
		Height:      12,
		FPS:         50,
		StopTimeout: time.Second,
	}
	return NewRecorder(cfg, staticFrames{f: f}, sr.factory, ".mp4", opts...)
}

func TestRecorderConcurrentStart(t *testing.T) {
	var sr sinkRecorder
	r := newTestRecorder(t, &sr)
	defer r.Close()

	var (
		wg      sync.WaitGroup
		success atomic.Int32
		busy    atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Start(context.Background(), 0, OriginManual)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrAlreadyRecording):
				busy.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != 1 || busy.Load() != 9 {
		t.Fatalf("success %d busy %d", success.Load(), busy.Load())
	}
	if len(sr.sinks) != 1 {
		t.Fatalf("expected one sink, got %d", len(sr.sinks))
	}
}

func TestRecorderStartStop(t *testing.T) {
	var sr sinkRecorder
	results := make(chan Result, 1)
	r := newTestRecorder(t, &sr, WithFinishHook(func(res Result) { results <- res }))

	s, err := r.Start(context.Background(), 0, OriginManual)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Active || filepath.Ext(s.Path) != ".mp4" {
		t.Fatalf("session %+v", s)
	}
	if !r.IsRecording() {
		t.Fatal("expected recording")
	}
	time.Sleep(100 * time.Millisecond)

	stopped, err := r.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stopped.Path != s.Path || stopped.Active {
		t.Fatalf("stopped %+v", stopped)
	}
	if r.IsRecording() {
		t.Fatal("expected idle")
	}
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second stop: %v", err)
	}

	res := <-results
	if res.Outcome != OutcomeStopped || res.Frames == 0 {
		t.Fatalf("result %+v", res)
	}
	sink := sr.sinks[0]
	if sink.closes.Load() != 1 {
		t.Fatalf("sink closed %d times", sink.closes.Load())
	}
	if res.Frames != sink.writes.Load() {
		t.Fatalf("frames %d writes %d", res.Frames, sink.writes.Load())
	}

	st := r.Status()
	if st.Recording || st.Last == nil || st.Last.Outcome != OutcomeStopped {
		t.Fatalf("status %+v", st)
	}
}

func TestRecorderDurationCap(t *testing.T) {
	var sr sinkRecorder
	results := make(chan Result, 1)
	r := newTestRecorder(t, &sr, WithFinishHook(func(res Result) { results <- res }))

	if _, err := r.Start(context.Background(), 100*time.Millisecond, OriginMotion); err != nil {
		t.Fatal(err)
	}
	select {
	case res := <-results:
		if res.Outcome != OutcomeCompleted {
			t.Fatalf("outcome %s", res.Outcome)
		}
		if res.Origin != OriginMotion {
			t.Fatalf("origin %s", res.Origin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recording did not stop at duration cap")
	}
	if r.IsRecording() {
		t.Fatal("expected idle")
	}
	if _, err := r.Start(context.Background(), 0, OriginManual); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
	_ = r.Close()
}

func TestRecorderWriteFailure(t *testing.T) {
	results := make(chan Result, 1)
	f := camera.NewFrame(16, 12, camera.OrderBGR)
	r := NewRecorder(RecorderConfig{StorageDir: t.TempDir(), Width: 16, Height: 12, FPS: 50},
		staticFrames{f: f},
		func(path string, _, _, _ int) (Sink, error) {
			return &fakeSink{path: path, writeErr: errors.New("disk full")}, nil
		}, ".avi", WithFinishHook(func(res Result) { results <- res }))

	if _, err := r.Start(context.Background(), 0, OriginManual); err != nil {
		t.Fatal(err)
	}
	select {
	case res := <-results:
		if res.Outcome != OutcomeFailed || !errors.Is(res.Err, ErrSinkWrite) {
			t.Fatalf("result %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write failure did not end recording")
	}
	if r.IsRecording() {
		t.Fatal("expected idle after failure")
	}
}

// stuckSink 的 Write 阻塞到 Close 为止
type stuckSink struct {
	path    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	closes  atomic.Int64
}

func newStuckSink(path string) *stuckSink {
	return &stuckSink{path: path, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *stuckSink) Write(*camera.Frame) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return ErrSinkClosed
}

func (s *stuckSink) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.release) })
	return nil
}

func (s *stuckSink) Path() string { return s.path }

func TestRecorderStopTimeout(t *testing.T) {
	var (
		mu    sync.Mutex
		sinks []*stuckSink
	)
	factory := func(path string, _, _, _ int) (Sink, error) {
		mu.Lock()
		defer mu.Unlock()
		s := newStuckSink(path)
		sinks = append(sinks, s)
		return s, nil
	}
	f := camera.NewFrame(16, 12, camera.OrderBGR)
	r := NewRecorder(RecorderConfig{StorageDir: t.TempDir(), Width: 16, Height: 12, FPS: 50, StopTimeout: 100 * time.Millisecond},
		staticFrames{f: f}, factory, ".mp4")

	if _, err := r.Start(context.Background(), 0, OriginManual); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	first := sinks[0]
	mu.Unlock()
	select {
	case <-first.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("write never started")
	}

	begin := time.Now()
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(begin); d > time.Second {
		t.Fatalf("stop took %s", d)
	}
	if r.IsRecording() {
		t.Fatal("expected idle after stop timeout")
	}

	select {
	case <-first.release:
	case <-time.After(2 * time.Second):
		t.Fatal("sink still open after stop timeout")
	}

	if _, err := r.Start(context.Background(), 0, OriginManual); err != nil {
		t.Fatalf("start after stop timeout: %v", err)
	}
	_, _ = r.Stop(context.Background())

	time.Sleep(100 * time.Millisecond)
	if n := first.closes.Load(); n != 1 {
		t.Fatalf("first sink closed %d times", n)
	}
}

func TestMJPEGSinkCloseDuringWrite(t *testing.T) {
	factory, _ := NewSinkFactory(CodecMJPEG, 80)
	sink, err := factory(filepath.Join(t.TempDir(), "close.avi"), 10, 16, 12)
	if err != nil {
		t.Fatal(err)
	}
	f := camera.NewFrame(16, 12, SinkOrder)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			if err := sink.Write(f); err != nil {
				if !errors.Is(err, ErrSinkClosed) {
					t.Errorf("write: %v", err)
				}
				return
			}
		}
	}()
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if err := sink.Write(f); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("write after close: %v", err)
	}
}

func TestRecorderClosed(t *testing.T) {
	var sr sinkRecorder
	r := newTestRecorder(t, &sr)
	if _, err := r.Start(context.Background(), 0, OriginManual); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.IsRecording() {
		t.Fatal("expected idle after close")
	}
	if _, err := r.Start(context.Background(), 0, OriginMotion); !errors.Is(err, ErrRecorderClosed) {
		t.Fatalf("expected ErrRecorderClosed, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestRecorderSinkOpenFailure(t *testing.T) {
	sr := sinkRecorder{err: errors.New("no codec")}
	r := newTestRecorder(t, &sr)
	if _, err := r.Start(context.Background(), 0, OriginManual); !errors.Is(err, ErrSinkOpen) {
		t.Fatalf("expected ErrSinkOpen, got %v", err)
	}
	if r.IsRecording() {
		t.Fatal("expected idle")
	}
}

func TestRecorderPathCollision(t *testing.T) {
	var sr sinkRecorder
	now := time.Date(2024, 1, 15, 8, 30, 0, 0, time.Local)
	r := newTestRecorder(t, &sr, WithClock(func() time.Time { return now }))

	first, err := r.nextPath(now, OriginManual)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first) != "manual_20240115_083000.mp4" {
		t.Fatalf("path %s", first)
	}
	if filepath.Base(filepath.Dir(first)) != "2024-01-15" {
		t.Fatalf("dir %s", first)
	}
	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := r.nextPath(now, OriginManual)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(second) != "manual_20240115_083000_1.mp4" {
		t.Fatalf("path %s", second)
	}
}

func TestMJPEGSink(t *testing.T) {
	factory, ext := NewSinkFactory(CodecMJPEG, 80)
	if ext != ".avi" {
		t.Fatalf("ext %s", ext)
	}
	path := filepath.Join(t.TempDir(), "test.avi")
	sink, err := factory(path, 10, 16, 12)
	if err != nil {
		t.Fatal(err)
	}
	f := camera.NewFrame(16, 12, SinkOrder)
	for range 5 {
		if err := sink.Write(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Write(camera.NewFrame(8, 8, SinkOrder)); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "AVI " {
		t.Fatal("not an avi file")
	}
	if d := aviDuration(path); d <= 0 {
		t.Fatalf("duration %v", d)
	}
}
