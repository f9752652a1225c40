package camera

import (
	"image"
	"time"

	xdraw "golang.org/x/image/draw"
)

// ChannelOrder 像素通道排列顺序
type ChannelOrder int

const (
	OrderRGB ChannelOrder = iota
	OrderBGR
)

func (o ChannelOrder) String() string {
	if o == OrderBGR {
		return "BGR"
	}
	return "RGB"
}

// Frame 一帧图像，每像素 3 字节，行跨度为 Width*3
// 发布到总线后不可修改，需要转换时返回新帧
type Frame struct {
	Width      int
	Height     int
	Pix        []byte
	Order      ChannelOrder
	Seq        uint64
	CapturedAt time.Time
}

// NewFrame 分配一帧空白图像
func NewFrame(w, h int, order ChannelOrder) *Frame {
	return &Frame{
		Width:  w,
		Height: h,
		Pix:    make([]byte, w*h*3),
		Order:  order,
	}
}

// Valid 缓冲区长度与宽高一致
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*3
}

// To 转换到指定通道顺序，顺序一致时直接返回自身
func (f *Frame) To(order ChannelOrder) *Frame {
	if f.Order == order {
		return f
	}
	out := *f
	out.Order = order
	out.Pix = make([]byte, len(f.Pix))
	for i := 0; i+2 < len(f.Pix); i += 3 {
		out.Pix[i] = f.Pix[i+2]
		out.Pix[i+1] = f.Pix[i+1]
		out.Pix[i+2] = f.Pix[i]
	}
	return &out
}

// RGBA 转为标准库编码器可直接使用的图像
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	r, b := 0, 2
	if f.Order == OrderBGR {
		r, b = 2, 0
	}
	for i, j := 0, 0; i+2 < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i+r]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+b]
		img.Pix[j+3] = 0xff
	}
	return img
}

// Resize 缩放到指定尺寸，尺寸相同时返回自身
func (f *Frame) Resize(w, h int) *Frame {
	if f.Width == w && f.Height == h {
		return f
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), f.RGBA(), image.Rect(0, 0, f.Width, f.Height), xdraw.Src, nil)
	out := FromImage(dst, f.Order)
	out.Seq = f.Seq
	out.CapturedAt = f.CapturedAt
	return out
}

// FromImage 将任意图像转为指定通道顺序的帧
func FromImage(img image.Image, order ChannelOrder) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy(), order)
	r, bl := 0, 2
	if order == OrderBGR {
		r, bl = 2, 0
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	}
	for y := 0; y < f.Height; y++ {
		off := rgba.PixOffset(rgba.Rect.Min.X, rgba.Rect.Min.Y+y)
		src := rgba.Pix[off : off+f.Width*4]
		dst := f.Pix[y*f.Width*3 : (y+1)*f.Width*3]
		for i, j := 0, 0; j < len(dst); i, j = i+4, j+3 {
			dst[j+r] = src[i]
			dst[j+1] = src[i+1]
			dst[j+bl] = src[i+2]
		}
	}
	return f
}
