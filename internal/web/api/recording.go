package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/Aeell/HomeEyeView/internal/core/recording"
	"github.com/Aeell/HomeEyeView/internal/core/recording/store/recordingdb"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

// RecordingAPI 录像历史与回放
type RecordingAPI struct {
	recordingCore recording.Core
}

// NewRecordingStore 创建录像存储层
func NewRecordingStore(db *gorm.DB) recording.Storer {
	return recordingdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewRecordingCore 创建录像管理核心服务，清理协程由监控系统启动
func NewRecordingCore(store recording.Storer, cfg *conf.Bootstrap) recording.Core {
	return recording.NewCore(store, recording.WithConfig(&cfg.Recording))
}

func NewRecordingAPI(core recording.Core) RecordingAPI {
	return RecordingAPI{recordingCore: core}
}

func RegisterRecording(g gin.IRouter, api RecordingAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/api/recordings", handler...)
	group.GET("", web.WrapH(api.findRecordings))
	group.GET("/:date/index.m3u8", api.datePlaylist)
	group.GET("/id/:id", web.WrapH(api.getRecording))
}

// findRecordings 分页查询录像历史
func (a RecordingAPI) findRecordings(c *gin.Context, in *recording.FindRecordingInput) (any, error) {
	items, total, err := a.recordingCore.FindRecordings(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

// getRecording 按 id 查询一条录像历史
func (a RecordingAPI) getRecording(c *gin.Context, _ *struct{}) (*recording.Recording, error) {
	recordingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, reason.ErrBadRequest.SetMsg("invalid recording id")
	}
	return a.recordingCore.GetRecording(c.Request.Context(), recordingID)
}

// datePlaylist 某一天 mp4 录像的 HLS 播放列表
// 路径: /api/recordings/:date/index.m3u8
func (a RecordingAPI) datePlaylist(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	content, err := a.recordingCore.Playlist(c.Request.Context(), date, "/api/video")
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "application/vnd.apple.mpegurl")
	c.Header("Cache-Control", "no-cache")
	c.String(http.StatusOK, content)
}
