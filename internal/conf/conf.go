package conf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Bootstrap 启动配置
type Bootstrap struct {
	Server    Server         `comment:"服务配置"`
	Data      Data           `comment:"数据存储"`
	Log       Log            `comment:"日志"`
	Camera    Camera         `comment:"摄像头采集"`
	Recording Recording      `comment:"录像"`
	Motion    Motion         `comment:"人体红外感应"`
	Live      Live           `comment:"实时预览"`
	Settings  CameraSettings `comment:"摄像头参数初始值"`

	BuildVersion string `toml:"-"`
	ConfigPath   string `toml:"-"`
}

type Server struct {
	HTTP  ServerHTTP
	Debug bool `comment:"调试模式，输出更多日志"`
}

type ServerHTTP struct {
	Port  int `comment:"http 端口"`
	PProf ServerPPROF
}

type ServerPPROF struct {
	Enabled   bool     `comment:"是否启用 pprof"`
	AccessIps []string `comment:"允许访问的 ip，为空时允许所有"`
}

type Data struct {
	Database Database
}

type Database struct {
	Dsn             string   `comment:"sqlite 文件路径，或 postgres:// / mysql:// 连接串"`
	MaxIdleConns    int32    `comment:"最大空闲连接数"`
	MaxOpenConns    int32    `comment:"最大连接数"`
	ConnMaxLifetime Duration `comment:"连接最大存活时间"`
	SlowThreshold   Duration `comment:"慢查询阈值"`
}

type Log struct {
	Dir          string   `comment:"日志目录"`
	Level        string   `comment:"debug/info/warn/error"`
	MaxAge       Duration `comment:"日志保留时长"`
	RotationTime Duration `comment:"日志切割间隔"`
}

type Camera struct {
	Hardware          bool     `comment:"尝试使用 rpicam-vid 硬件摄像头"`
	Device            string   `comment:"通用采集设备"`
	Width             int      `comment:"采集宽度"`
	Height            int      `comment:"采集高度"`
	FPS               int      `comment:"采集帧率"`
	FirstFrameTimeout Duration `comment:"打开设备后等待首帧的时间，超时则回退到下一个后端"`
}

type Recording struct {
	StorageDir      string   `comment:"录像存储目录"`
	RetainDays      int      `comment:"录像保留天数，<=0 表示不自动清理"`
	MotionDuration  Duration `comment:"移动侦测触发的录像时长"`
	Codec           string   `comment:"auto/mp4v/mjpeg"`
	StopTimeout     Duration `comment:"停止录像时等待写入协程退出的最长时间"`
	JPEGQuality     int      `comment:"mjpeg 录像的 jpeg 质量"`
	CleanupInterval Duration `comment:"自动清理间隔"`
}

type Motion struct {
	GPIOPin    string   `comment:"PIR 传感器引脚"`
	Debounce   Duration `comment:"去抖时间"`
	ArmOnStart bool     `comment:"启动时开启移动侦测"`
}

type Live struct {
	FPS       int      `comment:"mjpeg 推流最大帧率"`
	MaxWidth  int      `comment:"预览最大宽度，超过时等比缩放，0 表示不缩放"`
	Quality   int      `comment:"预览 jpeg 质量"`
	Heartbeat Duration `comment:"websocket 心跳间隔"`
}

// CameraSettings 摄像头参数
type CameraSettings struct {
	Brightness   float64 `toml:"brightness"`
	Contrast     float64 `toml:"contrast"`
	Zoom         float64 `toml:"zoom"`
	WhiteBalance string  `toml:"white_balance"`
	ExposureMode string  `toml:"exposure_mode"`
	Focus        string  `toml:"focus"`
}

// SetupConfig 读取配置文件，文件不存在时写入默认配置
func SetupConfig(path string) (*Bootstrap, error) {
	bc := DefaultConfig()
	bc.ConfigPath = path

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := WriteConfig(bc, path); err != nil {
			return nil, err
		}
		return bc, nil
	}
	if err := toml.NewDecoder(bytes.NewReader(b)).Decode(bc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	bc.ConfigPath = path
	return bc, nil
}

// WriteConfig 将配置写回文件
func WriteConfig(bc *Bootstrap, path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := toml.Marshal(bc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Duration 支持 "5s"、"3m" 形式的配置
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
