package recording

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"

	"github.com/Aeell/HomeEyeView/internal/core/camera"
	"github.com/Aeell/HomeEyeView/pkg/ffwork"
	"github.com/icza/mjpeg"
)

const (
	CodecAuto  = "auto"
	CodecMP4V  = "mp4v"
	CodecMJPEG = "mjpeg"
)

// ErrSinkClosed 写入器已关闭
var ErrSinkClosed = errors.New("video sink closed")

// SinkOrder 所有写入器都要求 BGR 输入
const SinkOrder = camera.OrderBGR

// Sink 视频文件写入器，Close 只调用一次
// Close 可能与进行中的 Write 并发，此时 Write 应尽快返回错误
type Sink interface {
	Write(*camera.Frame) error
	Close() error
	Path() string
}

// SinkFactory 按路径、帧率、分辨率创建写入器
type SinkFactory func(path string, fps, width, height int) (Sink, error)

// NewSinkFactory 根据编码选择写入器，返回工厂与文件扩展名
// auto 时优先 ffmpeg mp4v，没有 ffmpeg 则退回纯 Go 的 MJPEG AVI
func NewSinkFactory(codec string, quality int) (SinkFactory, string) {
	if codec == CodecAuto || codec == "" {
		codec = CodecMJPEG
		if ffwork.Available() {
			codec = CodecMP4V
		}
		slog.Info("recording codec selected", "codec", codec)
	}
	if codec == CodecMP4V {
		return newFFmpegSink, ".mp4"
	}
	return func(path string, fps, width, height int) (Sink, error) {
		return newMJPEGSink(path, fps, width, height, quality)
	}, ".avi"
}

type ffmpegSink struct {
	path          string
	width, height int
	enc           *ffwork.Encoder
}

func newFFmpegSink(path string, fps, width, height int) (Sink, error) {
	enc, err := ffwork.NewEncoder(path, width, height, fps, "mpeg4")
	if err != nil {
		return nil, err
	}
	return &ffmpegSink{path: path, width: width, height: height, enc: enc}, nil
}

func (s *ffmpegSink) Path() string { return s.path }

func (s *ffmpegSink) Write(f *camera.Frame) error {
	if f.Width != s.width || f.Height != s.height || f.Order != SinkOrder {
		return fmt.Errorf("unexpected frame %dx%d %s", f.Width, f.Height, f.Order)
	}
	return s.enc.WriteFrame(f.Pix)
}

func (s *ffmpegSink) Close() error {
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("%w, log: %v", err, s.enc.Log())
	}
	return nil
}

type mjpegSink struct {
	path          string
	width, height int
	quality       int

	m      sync.Mutex
	aw     mjpeg.AviWriter
	closed bool
}

func newMJPEGSink(path string, fps, width, height, quality int) (Sink, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}
	return &mjpegSink{path: path, width: width, height: height, quality: quality, aw: aw}, nil
}

func (s *mjpegSink) Path() string { return s.path }

func (s *mjpegSink) Write(f *camera.Frame) error {
	if f.Width != s.width || f.Height != s.height {
		return fmt.Errorf("unexpected frame %dx%d", f.Width, f.Height)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: s.quality}); err != nil {
		return err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return s.aw.AddFrame(buf.Bytes())
}

func (s *mjpegSink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.aw.Close()
}
