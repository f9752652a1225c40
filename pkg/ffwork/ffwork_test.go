package ffwork

import (
	"slices"
	"testing"

	"github.com/ixugo/goddd/pkg/queue"
)

func TestNewFrameCaptureValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"resolution", Config{Width: 0, Height: 1080, FPS: 30, Input: []string{"-i", "x"}}},
		{"fps", Config{Width: 1920, Height: 1080, FPS: 0, Input: []string{"-i", "x"}}},
		{"input", Config{Width: 1920, Height: 1080, FPS: 30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFrameCapture(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	fc, err := NewFrameCapture(Config{Width: 4, Height: 2, FPS: 30, Input: []string{"-i", "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if fc.FrameSize() != 24 {
		t.Fatalf("frame size = %d", fc.FrameSize())
	}
	args := fc.buildArgs()
	if !slices.Contains(args, "bgr24") || args[len(args)-1] != "pipe:1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestLineWriter(t *testing.T) {
	w := lineWriter{q: queue.NewCirQueue[string](10)}
	_, _ = w.Write([]byte("first line\nsec"))
	_, _ = w.Write([]byte("ond line\npartial"))

	got := w.q.Range()
	if len(got) != 2 || !slices.Contains(got, "first line") || !slices.Contains(got, "second line") {
		t.Fatalf("got %v", got)
	}
}
