package conf

import "time"

// DefaultConfig 默认配置
func DefaultConfig() *Bootstrap {
	return &Bootstrap{
		Server: Server{
			HTTP: ServerHTTP{
				Port: 5000,
			},
		},
		Data: Data{
			Database: Database{
				Dsn:             "configs/data.db",
				MaxIdleConns:    10,
				MaxOpenConns:    50,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
			},
		},
		Log: Log{
			Dir:          "logs",
			Level:        "info",
			MaxAge:       Duration(7 * 24 * time.Hour),
			RotationTime: Duration(24 * time.Hour),
		},
		Camera: Camera{
			Hardware:          true,
			Device:            "/dev/video0",
			Width:             1920,
			Height:            1080,
			FPS:               30,
			FirstFrameTimeout: Duration(3 * time.Second),
		},
		Recording: Recording{
			StorageDir:      "recordings",
			RetainDays:      7,
			MotionDuration:  Duration(180 * time.Second),
			Codec:           "auto",
			StopTimeout:     Duration(5 * time.Second),
			JPEGQuality:     85,
			CleanupInterval: Duration(60 * time.Minute),
		},
		Motion: Motion{
			GPIOPin:  "GPIO18",
			Debounce: Duration(2 * time.Second),
		},
		Live: Live{
			FPS:       10,
			MaxWidth:  1280,
			Quality:   80,
			Heartbeat: Duration(100 * time.Millisecond),
		},
		Settings: CameraSettings{
			Brightness:   0,
			Contrast:     1.0,
			Zoom:         1.0,
			WhiteBalance: "auto",
			ExposureMode: "auto",
			Focus:        "auto",
		},
	}
}
