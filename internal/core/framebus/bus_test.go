package framebus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Aeell/HomeEyeView/internal/core/camera"
)

func frame(n byte) *camera.Frame {
	f := camera.NewFrame(4, 4, camera.OrderBGR)
	for i := range f.Pix {
		f.Pix[i] = n
	}
	f.Seq = uint64(n)
	return f
}

func TestLatest(t *testing.T) {
	b := New()
	if b.Latest() != nil {
		t.Fatal("expected nil before first publish")
	}
	for i := byte(1); i <= 5; i++ {
		b.Publish(frame(i))
	}
	got := b.Latest()
	if got.Seq != 5 || got.Pix[0] != 5 {
		t.Fatalf("latest = %d", got.Seq)
	}
	if b.Seq() != 5 {
		t.Fatalf("seq = %d", b.Seq())
	}
	b.Publish(nil)
	if b.Seq() != 5 {
		t.Fatal("nil publish must be ignored")
	}
}

// 并发读写时每一帧的像素必须一致
func TestNoTornFrames(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() {
		for i := 0; ctx.Err() == nil; i++ {
			b.Publish(frame(byte(i)))
		}
	})
	for range 4 {
		wg.Go(func() {
			for ctx.Err() == nil {
				f := b.Latest()
				if f == nil {
					continue
				}
				for _, p := range f.Pix {
					if p != f.Pix[0] {
						t.Error("torn frame")
						return
					}
				}
			}
		})
	}
	wg.Wait()
}

func TestWait(t *testing.T) {
	b := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Publish(frame(7))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, seq, err := b.Wait(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.Seq != 7 || seq != 1 {
		t.Fatalf("frame %d seq %d", f.Seq, seq)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, _, err := b.Wait(short, seq); err == nil {
		t.Fatal("expected timeout without new frames")
	}
}
