package recording

import (
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
)

type FindRecordingInput struct {
	web.PagerFilter
	Date    string `form:"date"`    // 日期 YYYY-MM-DD
	Origin  string `form:"origin"`  // manual/motion
	Outcome string `form:"outcome"` // completed/stopped/failed
}

type AddRecordingInput struct {
	SessionID string   `json:"session_id"`
	Origin    string   `json:"origin"`
	Date      string   `json:"date"`
	Path      string   `json:"path"`
	StartedAt orm.Time `json:"started_at"`
	EndedAt   orm.Time `json:"ended_at"`
	Duration  float64  `json:"duration"`
	Frames    int64    `json:"frames"`
	Size      int64    `json:"size"`
	Outcome   string   `json:"outcome"`
	Error     string   `json:"error"`
}
