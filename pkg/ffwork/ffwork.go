// Package ffwork 通过 ffmpeg 管道读写原始视频帧
package ffwork

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

// ErrNotFound 系统中没有 ffmpeg
var ErrNotFound = errors.New("ffmpeg not found in PATH")

// Binary ffmpeg 可执行文件名
var Binary = "ffmpeg"

// Available 检查 ffmpeg 是否可用
func Available() bool {
	_, err := exec.LookPath(Binary)
	return err == nil
}

type (
	// Config 采集参数，Input 为 -i 之前的输入参数（包含 -i 本身）
	Config struct {
		Name          string
		Width, Height int
		FPS           int
		Input         []string
		OnFrame       func(frame *FrameData)
	}
	FrameData struct {
		FrameNum  uint64
		Timestamp time.Time
		Data      []byte
	}
	// FrameCapture 以 bgr24 原始格式从 ffmpeg 标准输出读取视频帧
	FrameCapture struct {
		config                Config
		frameSize             int
		frameCh               chan *FrameData
		errCh                 chan error
		ctx                   context.Context
		cancel                context.CancelFunc
		m                     sync.Mutex
		started               bool
		cmd                   *exec.Cmd
		lastFrame             time.Time
		wg                    sync.WaitGroup
		ffmpegLog             *queue.CirQueue[string]
		frameCount, skipCount uint64
	}
	Stats struct {
		Name                  string
		FrameCount, SkipCount uint64
		LastFrame             time.Time
		FrameSize             int
		IsRunning             bool
	}
)

func NewFrameCapture(cfg Config) (*FrameCapture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}
	if len(cfg.Input) == 0 {
		return nil, fmt.Errorf("input is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FrameCapture{
		config:    cfg,
		frameSize: cfg.Width * cfg.Height * 3,
		frameCh:   make(chan *FrameData, 2),
		errCh:     make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
		ffmpegLog: queue.NewCirQueue[string](100),
	}, nil
}

func (fc *FrameCapture) FrameSize() int {
	return fc.frameSize
}

func (fc *FrameCapture) buildArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-nostdin"}
	args = append(args, fc.config.Input...)
	return append(args,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fc.config.FPS, fc.config.Width, fc.config.Height),
		"pipe:1",
	)
}

func (fc *FrameCapture) Start() error {
	fc.m.Lock()
	defer fc.m.Unlock()
	if fc.started {
		return fmt.Errorf("frame capture already started")
	}
	if !Available() {
		return ErrNotFound
	}

	fc.cmd = exec.CommandContext(fc.ctx, Binary, fc.buildArgs()...)
	stdout, err := fc.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := fc.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := fc.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	fc.started = true
	fc.lastFrame = time.Now()

	fc.wg.Go(func() { fc.captureLoop(stdout) })
	fc.wg.Go(func() { fc.readStderr(stderr) })
	return nil
}

// captureLoop 按固定帧大小读取 bgr24 数据
// 消费者跟不上时丢弃旧帧，只保留最新的
func (fc *FrameCapture) captureLoop(stdout io.Reader) {
	defer close(fc.frameCh)

	reader := bufio.NewReaderSize(stdout, fc.frameSize*2)
	for {
		select {
		case <-fc.ctx.Done():
			return
		default:
		}

		frameBytes := make([]byte, fc.frameSize)
		if _, err := io.ReadFull(reader, frameBytes); err != nil {
			select {
			case fc.errCh <- fmt.Errorf("ffmpeg stream ended: %w", err):
			default:
			}
			return
		}

		frameNum := atomic.AddUint64(&fc.frameCount, 1)
		now := time.Now()
		fc.m.Lock()
		fc.lastFrame = now
		fc.m.Unlock()

		frame := FrameData{FrameNum: frameNum, Timestamp: now, Data: frameBytes}
		if fc.config.OnFrame != nil {
			fc.config.OnFrame(&frame)
			continue
		}

		select {
		case fc.frameCh <- &frame:
		case <-fc.ctx.Done():
			return
		default:
			atomic.AddUint64(&fc.skipCount, 1)
		}
	}
}

// readStderr ffmpeg 的警告和错误都在 stderr
func (fc *FrameCapture) readStderr(stderr io.Reader) {
	scan := bufio.NewScanner(stderr)
	for scan.Scan() {
		fc.ffmpegLog.Push(scan.Text())
	}
}

func (fc *FrameCapture) Frames() <-chan *FrameData {
	return fc.frameCh
}

func (fc *FrameCapture) Error() <-chan error {
	return fc.errCh
}

func (fc *FrameCapture) Log() []string {
	return fc.ffmpegLog.Range()
}

func (fc *FrameCapture) Stop() error {
	fc.m.Lock()
	if !fc.started {
		fc.m.Unlock()
		return nil
	}
	fc.started = false
	fc.m.Unlock()

	fc.cancel()
	fc.wg.Wait()
	if err := waitOrKill(fc.cmd, 5*time.Second); err != nil && fc.ctx.Err() == nil {
		return err
	}
	return nil
}

func (fc *FrameCapture) GetStats() Stats {
	fc.m.Lock()
	defer fc.m.Unlock()
	return Stats{
		Name:       fc.config.Name,
		FrameCount: atomic.LoadUint64(&fc.frameCount),
		SkipCount:  atomic.LoadUint64(&fc.skipCount),
		LastFrame:  fc.lastFrame,
		FrameSize:  fc.frameSize,
		IsRunning:  fc.started,
	}
}

// Encoder 将 bgr24 原始帧写入 ffmpeg 标准输入并封装为文件
type Encoder struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	frameSize int
	ffmpegLog *queue.CirQueue[string]
}

// NewEncoder 启动编码进程，codec 为 mpeg4 时使用 mp4v 标签
func NewEncoder(path string, width, height, fps int, codec string) (*Encoder, error) {
	if !Available() {
		return nil, ErrNotFound
	}
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-c:v", codec,
	}
	if codec == "mpeg4" {
		args = append(args, "-tag:v", "mp4v", "-q:v", "5")
	}
	args = append(args, "-pix_fmt", "yuv420p", path)

	log := queue.NewCirQueue[string](100)
	cmd := exec.Command(Binary, args...)
	cmd.Stderr = &lineWriter{q: log}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return &Encoder{
		cmd:       cmd,
		stdin:     stdin,
		frameSize: width * height * 3,
		ffmpegLog: log,
	}, nil
}

// WriteFrame 写入一帧，长度必须等于 width*height*3
func (e *Encoder) WriteFrame(data []byte) error {
	if len(data) != e.frameSize {
		return fmt.Errorf("frame size mismatch: %d != %d", len(data), e.frameSize)
	}
	_, err := e.stdin.Write(data)
	return err
}

// Close 关闭输入让 ffmpeg 写完文件尾，超时则强制结束
func (e *Encoder) Close() error {
	_ = e.stdin.Close()
	return waitOrKill(e.cmd, 5*time.Second)
}

func (e *Encoder) Log() []string {
	return e.ffmpegLog.Range()
}

// NewLineWriter 返回按行写入环形队列的 Writer，用于收集子进程输出
func NewLineWriter(q *queue.CirQueue[string]) io.Writer {
	return &lineWriter{q: q}
}

// lineWriter 按行写入环形队列
type lineWriter struct {
	m   sync.Mutex
	q   *queue.CirQueue[string]
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.m.Lock()
	defer w.m.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.q.Push(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func waitOrKill(cmd *exec.Cmd, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-time.After(timeout):
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill ffmpeg: %w", err)
		}
		<-done
		return fmt.Errorf("ffmpeg did not exit within %s", timeout)
	case err := <-done:
		return err
	}
}
