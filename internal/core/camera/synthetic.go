package camera

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// 背景色 BGR
var syntheticBackground = [3]byte{64, 128, 64}

// SyntheticAdapter 无摄像头时的兜底后端，生成带时间戳和帧号的占位画面
type SyntheticAdapter struct {
	width, height int
	background    []byte
	count         atomic.Uint64
	released      atomic.Bool
}

var _ Adapter = (*SyntheticAdapter)(nil)

// NewSyntheticAdapter 不依赖任何外部设备，总是成功
func NewSyntheticAdapter(width, height int) *SyntheticAdapter {
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	bg := make([]byte, width*height*3)
	for i := 0; i < len(bg); i += 3 {
		copy(bg[i:i+3], syntheticBackground[:])
	}
	return &SyntheticAdapter{width: width, height: height, background: bg}
}

func (s *SyntheticAdapter) Name() string { return "synthetic" }

func (s *SyntheticAdapter) ChannelOrder() ChannelOrder { return OrderBGR }

func (s *SyntheticAdapter) Capture() (*Frame, error) {
	if s.released.Load() {
		return nil, ErrNotAvailable
	}
	n := s.count.Add(1) - 1
	now := time.Now()

	f := NewFrame(s.width, s.height, OrderBGR)
	copy(f.Pix, s.background)
	f.Seq = n
	f.CapturedAt = now

	canvas := bgrCanvas{f: f}
	scale := max(1, s.height/270)
	lines := []string{
		"Development Mode - " + now.Format(time.DateTime),
		"Synthetic Camera Feed",
		fmt.Sprintf("Frame: %d", n),
	}
	for i, line := range lines {
		y := s.height * (100 + 100*i) / 1080
		drawText(canvas, line, s.width*50/1920, y, scale)
	}
	return f, nil
}

func (s *SyntheticAdapter) Release() error {
	s.released.Store(true)
	return nil
}

// drawText 先在小画布上绘制，再按倍数放大贴到帧上
// baseline 为放大后文字基线的 y 坐标
func drawText(dst xdraw.Image, text string, x, baseline, scale int) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Height
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	top := baseline - face.Ascent*scale
	r := image.Rect(x, top, x+w*scale, top+h*scale)
	xdraw.NearestNeighbor.Scale(dst, r, small, small.Bounds(), xdraw.Over, nil)
}

// bgrCanvas 让 BGR 帧可以作为绘图目标
type bgrCanvas struct {
	f *Frame
}

func (c bgrCanvas) ColorModel() color.Model { return color.RGBAModel }

func (c bgrCanvas) Bounds() image.Rectangle { return image.Rect(0, 0, c.f.Width, c.f.Height) }

func (c bgrCanvas) At(x, y int) color.Color {
	if !image.Pt(x, y).In(c.Bounds()) {
		return color.RGBA{}
	}
	i := (y*c.f.Width + x) * 3
	return color.RGBA{R: c.f.Pix[i+2], G: c.f.Pix[i+1], B: c.f.Pix[i], A: 0xff}
}

func (c bgrCanvas) Set(x, y int, col color.Color) {
	if !image.Pt(x, y).In(c.Bounds()) {
		return
	}
	rc := color.RGBAModel.Convert(col).(color.RGBA)
	i := (y*c.f.Width + x) * 3
	c.f.Pix[i], c.f.Pix[i+1], c.f.Pix[i+2] = rc.B, rc.G, rc.R
}
