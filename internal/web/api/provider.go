package api

import (
	"context"
	"net/http"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/Aeell/HomeEyeView/internal/core/recording"
	"github.com/Aeell/HomeEyeView/internal/core/surveillance"
	"github.com/Aeell/HomeEyeView/internal/web/ws"
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/ixugo/goddd/pkg/web"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewRecordingStore, NewRecordingCore, NewRecordingAPI,
	NewSystem, NewSurveillanceAPI,
	NewHub,
)

type Usecase struct {
	Conf            *conf.Bootstrap
	System          *surveillance.System
	Hub             *ws.Hub
	SurveillanceAPI SurveillanceAPI
	RecordingAPI    RecordingAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	// 如果启用了 Pprof，设置 Pprof 监控
	if cfg.HTTP.PProf.Enabled {
		web.SetupPProf(g, &cfg.HTTP.PProf.AccessIps)
	}

	setupRouter(g, uc)
	return g
}

// NewSystem 打开摄像头并启动后台任务，cleanup 时释放
func NewSystem(bc *conf.Bootstrap, core recording.Core) (*surveillance.System, func(), error) {
	sys, err := surveillance.New(bc, core)
	if err != nil {
		return nil, nil, err
	}
	return sys, sys.Close, nil
}

// NewHub websocket 心跳随 cleanup 停止
func NewHub(bc *conf.Bootstrap, sys *surveillance.System) (*ws.Hub, func()) {
	hub := ws.NewHub(sys.Live(), bc.Live.Heartbeat.Duration(), sys.CameraAvailable)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}
