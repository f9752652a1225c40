package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Aeell/HomeEyeView/internal/core/recording"
	"github.com/Aeell/HomeEyeView/internal/core/surveillance"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// SurveillanceAPI 录像控制、移动侦测与摄像头参数
type SurveillanceAPI struct {
	sys *surveillance.System
}

func NewSurveillanceAPI(sys *surveillance.System) SurveillanceAPI {
	return SurveillanceAPI{sys: sys}
}

func registerSurveillance(g gin.IRouter, api SurveillanceAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/api", handler...)
	group.GET("/status", web.WrapH(api.getStatus))
	group.GET("/videos", web.WrapH(api.listVideos))
	group.POST("/start-recording", wrapAction(api.startRecording))
	group.POST("/stop-recording", wrapAction(api.stopRecording))
	group.POST("/toggle-motion-detection", wrapAction(api.toggleMotion))
	group.POST("/camera-settings", wrapAction(api.updateSetting))
	group.POST("/cleanup-old", wrapAction(api.cleanupOld))
	group.POST("/set-auto-delete", wrapAction(api.setAutoDelete))
	group.POST("/dev/simulate-motion", wrapAction(api.simulateMotion))
}

// wrapAction 动作类接口统一返回 {success, message}
// 业务错误也返回 200，请求体可以为空
func wrapAction[I any](fn func(*gin.Context, *I) (gin.H, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in I
		if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid request: " + err.Error()})
			return
		}
		out, err := fn(c, &in)
		if err != nil {
			code := http.StatusOK
			if errors.Is(err, surveillance.ErrGPIOPresent) {
				code = http.StatusForbidden
			}
			c.JSON(code, gin.H{"success": false, "message": sentence(err)})
			return
		}
		if out == nil {
			out = gin.H{}
		}
		out["success"] = true
		c.JSON(http.StatusOK, out)
	}
}

// sentence 首字母大写
func sentence(err error) string {
	s := err.Error()
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

func (a SurveillanceAPI) getStatus(_ *gin.Context, _ *struct{}) (surveillance.Status, error) {
	return a.sys.Status(), nil
}

// listVideos 按日期分组的录像文件
func (a SurveillanceAPI) listVideos(c *gin.Context, _ *struct{}) (map[string][]recording.Video, error) {
	videos, err := a.sys.ListVideos(c.Request.Context())
	if err != nil {
		return nil, reason.ErrServer.SetMsg(err.Error())
	}
	return videos, nil
}

// serveVideo 支持 Range 请求，浏览器可以边下边播
func (a SurveillanceAPI) serveVideo(c *gin.Context) {
	full, err := a.sys.ResolveVideo(c.Param("path"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}
	c.File(full)
}

type startRecordingInput struct {
	Duration *float64 `json:"duration"` // 秒，为空时一直录到手动停止
}

func (a SurveillanceAPI) startRecording(c *gin.Context, in *startRecordingInput) (gin.H, error) {
	var d time.Duration
	if in.Duration != nil && *in.Duration > 0 {
		d = time.Duration(*in.Duration * float64(time.Second))
	}
	s, err := a.sys.StartRecording(c.Request.Context(), d)
	if err != nil {
		if errors.Is(err, recording.ErrSinkOpen) {
			return nil, fmt.Errorf("recording failed: %w", err)
		}
		return nil, err
	}
	return gin.H{"message": "Recording started: " + filepath.Base(s.Path), "recording": s}, nil
}

func (a SurveillanceAPI) stopRecording(c *gin.Context, _ *struct{}) (gin.H, error) {
	s, err := a.sys.StopRecording(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"message": "Recording stopped", "recording": s}, nil
}

func (a SurveillanceAPI) toggleMotion(_ *gin.Context, _ *struct{}) (gin.H, error) {
	return gin.H{"motion_detection": a.sys.ToggleMotion()}, nil
}

type updateSettingInput struct {
	Setting string `json:"setting"`
	Value   any    `json:"value"`
}

func (a SurveillanceAPI) updateSetting(_ *gin.Context, in *updateSettingInput) (gin.H, error) {
	if err := a.sys.UpdateSetting(in.Setting, in.Value); err != nil {
		return nil, err
	}
	return gin.H{"message": fmt.Sprintf("Updated %s to %v", in.Setting, in.Value)}, nil
}

func (a SurveillanceAPI) cleanupOld(c *gin.Context, _ *struct{}) (gin.H, error) {
	n, err := a.sys.Cleanup(c.Request.Context())
	if err != nil {
		return nil, fmt.Errorf("cleanup failed: %w", err)
	}
	return gin.H{"message": fmt.Sprintf("Deleted %d old recording folders", n), "deleted": n}, nil
}

type setAutoDeleteInput struct {
	Days json.Number `json:"days"` // 缺省为 7
}

func (a SurveillanceAPI) setAutoDelete(_ *gin.Context, in *setAutoDeleteInput) (gin.H, error) {
	days := 7
	if in.Days != "" {
		f, err := strconv.ParseFloat(string(in.Days), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid days: %s", in.Days)
		}
		days = int(f)
	}
	if err := a.sys.SetRetentionDays(days); err != nil {
		return nil, err
	}
	return gin.H{"auto_delete_days": days}, nil
}

func (a SurveillanceAPI) simulateMotion(c *gin.Context, _ *struct{}) (gin.H, error) {
	started, err := a.sys.SimulateMotion(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"message": "Motion simulation triggered", "recording_started": started}, nil
}
