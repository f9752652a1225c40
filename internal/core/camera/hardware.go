package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aeell/HomeEyeView/pkg/ffwork"
	"github.com/ixugo/goddd/pkg/queue"
)

// 新系统为 rpicam-*，旧系统为 libcamera-*
var hardwareBinaries = []string{"rpicam-vid", "libcamera-vid"}

var awbModes = map[string]struct{}{
	"auto": {}, "incandescent": {}, "tungsten": {}, "fluorescent": {},
	"indoor": {}, "daylight": {}, "cloudy": {},
}

// HardwareConfig 树莓派摄像头参数
type HardwareConfig struct {
	Width, Height     int
	FPS               int
	FirstFrameTimeout time.Duration
	Brightness        float64
	Contrast          float64
	WhiteBalance      string
}

// HardwareAdapter 读取 rpicam-vid 输出的 MJPEG 流并解码为 RGB
// 参数调整通过重启采集进程生效
type HardwareAdapter struct {
	bin string
	cfg HardwareConfig

	m      sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	log      *queue.CirQueue[string]
	latest   atomic.Pointer[Frame]
	lastSeq  atomic.Uint64
	seq      atomic.Uint64
	decodeEr atomic.Uint64
	release  sync.Once
	released atomic.Bool
}

var (
	_ Adapter    = (*HardwareAdapter)(nil)
	_ Controller = (*HardwareAdapter)(nil)
)

// LookupHardware 返回可用的采集程序
func LookupHardware() (string, error) {
	for _, name := range hardwareBinaries {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("neither rpicam-vid nor libcamera-vid found")
}

// NewHardwareAdapter 启动采集进程并等待首帧
func NewHardwareAdapter(ctx context.Context, cfg HardwareConfig) (*HardwareAdapter, error) {
	bin, err := LookupHardware()
	if err != nil {
		return nil, err
	}
	if cfg.WhiteBalance == "" {
		cfg.WhiteBalance = "auto"
	}
	if cfg.Contrast == 0 {
		cfg.Contrast = 1
	}
	h := HardwareAdapter{bin: bin, cfg: cfg, log: queue.NewCirQueue[string](100)}

	h.m.Lock()
	err = h.startLocked()
	h.m.Unlock()
	if err != nil {
		return nil, err
	}

	timeout := cfg.FirstFrameTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(timeout)
	for h.latest.Load() == nil {
		select {
		case <-tick.C:
		case <-h.done:
			_ = h.Release()
			return nil, fmt.Errorf("%s exited before first frame, log: %v", bin, h.log.Range())
		case <-deadline:
			_ = h.Release()
			return nil, fmt.Errorf("no frame from %s within %s", bin, timeout)
		case <-ctx.Done():
			_ = h.Release()
			return nil, ctx.Err()
		}
	}
	return &h, nil
}

func (h *HardwareAdapter) args() []string {
	args := []string{
		"-t", "0",
		"-n",
		"--codec", "mjpeg",
		"--width", strconv.Itoa(h.cfg.Width),
		"--height", strconv.Itoa(h.cfg.Height),
		"--framerate", strconv.Itoa(h.cfg.FPS),
		"--brightness", strconv.FormatFloat(h.cfg.Brightness, 'f', 2, 64),
		"--contrast", strconv.FormatFloat(h.cfg.Contrast, 'f', 2, 64),
	}
	if _, ok := awbModes[h.cfg.WhiteBalance]; ok {
		args = append(args, "--awb", h.cfg.WhiteBalance)
	} else {
		// 非自动白平衡时固定增益
		args = append(args, "--awbgains", "1.0,1.0")
	}
	return append(args, "-o", "-")
}

// startLocked 调用方需持有 h.m
func (h *HardwareAdapter) startLocked() error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, h.bin, h.args()...)
	cmd.Stderr = ffwork.NewLineWriter(h.log)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start %s: %w", h.bin, err)
	}

	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	go func() {
		defer close(done)
		h.readLoop(stdout)
		_ = cmd.Wait()
	}()
	return nil
}

// stopLocked 调用方需持有 h.m
func (h *HardwareAdapter) stopLocked() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		slog.Warn("hardware camera process did not exit", "bin", h.bin)
	}
	h.cancel = nil
}

func (h *HardwareAdapter) readLoop(r io.Reader) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 512*1024), 16*1024*1024)
	scan.Split(splitJPEG)
	for scan.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scan.Bytes()))
		if err != nil {
			h.decodeEr.Add(1)
			continue
		}
		f := FromImage(img, OrderRGB)
		f.Seq = h.seq.Add(1)
		f.CapturedAt = time.Now()
		h.latest.Store(f)
	}
}

func (h *HardwareAdapter) Name() string { return "hardware" }

func (h *HardwareAdapter) ChannelOrder() ChannelOrder { return OrderRGB }

func (h *HardwareAdapter) Capture() (*Frame, error) {
	if h.released.Load() {
		return nil, ErrNotAvailable
	}
	f := h.latest.Load()
	if f == nil || f.Seq == h.lastSeq.Load() {
		return nil, ErrNotAvailable
	}
	h.lastSeq.Store(f.Seq)
	return f, nil
}

// ApplySetting brightness、contrast、white_balance 可实时生效，其它参数只保存
func (h *HardwareAdapter) ApplySetting(key string, value any) error {
	h.m.Lock()
	defer h.m.Unlock()
	if h.released.Load() {
		return errors.New("camera released")
	}

	switch key {
	case KeyBrightness:
		v, _ := toFloat(value)
		h.cfg.Brightness = max(-1, min(1, v))
	case KeyContrast:
		v, _ := toFloat(value)
		h.cfg.Contrast = max(0, min(32, v))
	case KeyWhiteBalance:
		s, _ := value.(string)
		h.cfg.WhiteBalance = s
	default:
		return nil
	}

	h.stopLocked()
	if err := h.startLocked(); err != nil {
		return err
	}
	slog.Info("hardware camera restarted with new setting", "key", key, "value", value)
	return nil
}

func (h *HardwareAdapter) Release() error {
	h.release.Do(func() {
		h.released.Store(true)
		h.m.Lock()
		h.stopLocked()
		h.m.Unlock()
		slog.Info("hardware camera released", "frames", h.seq.Load(), "decode_errors", h.decodeEr.Load())
	})
	return nil
}

// splitJPEG 按 SOI/EOI 标记切分 MJPEG 字节流
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// 保留最后一个字节，可能是被截断的标记
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}
