package motion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// EdgeSink 接收传感器边沿
type EdgeSink interface {
	Edge()
}

// GPIOSource PIR 传感器，上升沿表示检测到运动
type GPIOSource struct {
	pin      gpio.PinIO
	debounce time.Duration
	sink     EdgeSink
	now      func() time.Time
}

// OpenGPIO 初始化引脚，非树莓派或没有权限时返回错误
func OpenGPIO(name string, debounce time.Duration, sink EdgeSink) (*GPIOSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("gpio pin %q: %w", name, err)
	}
	slog.Info("gpio motion sensor ready", "pin", name, "debounce", debounce)
	return newGPIOSource(pin, debounce, sink), nil
}

func newGPIOSource(pin gpio.PinIO, debounce time.Duration, sink EdgeSink) *GPIOSource {
	return &GPIOSource{pin: pin, debounce: debounce, sink: sink, now: time.Now}
}

// Run 阻塞直到 ctx 结束，WaitForEdge 每秒超时一次以便检查 ctx
func (g *GPIOSource) Run(ctx context.Context) {
	var last time.Time
	for ctx.Err() == nil {
		if !g.pin.WaitForEdge(time.Second) {
			continue
		}
		now := g.now()
		if !last.IsZero() && now.Sub(last) < g.debounce {
			continue
		}
		last = now
		g.sink.Edge()
	}
	if err := g.pin.Halt(); err != nil {
		slog.Warn("gpio halt", "err", err)
	}
}
