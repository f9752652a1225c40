package recording

import "github.com/ixugo/goddd/pkg/orm"

// Recording 录像历史记录，每次录像结束时写入
type Recording struct {
	ID        int64    `gorm:"primaryKey" json:"id"`
	SessionID string   `gorm:"column:session_id;index" json:"session_id"` // 会话 ID
	Origin    string   `gorm:"column:origin" json:"origin"`               // manual/motion
	Date      string   `gorm:"column:date;index" json:"date"`             // 所在日期目录 YYYY-MM-DD
	Path      string   `gorm:"column:path" json:"path"`                   // 相对存储目录的路径
	StartedAt orm.Time `gorm:"column:started_at;index" json:"started_at"` // 开始时间
	EndedAt   orm.Time `gorm:"column:ended_at" json:"ended_at"`           // 结束时间
	Duration  float64  `gorm:"column:duration" json:"duration"`           // 时长（秒）
	Frames    int64    `gorm:"column:frames" json:"frames"`               // 写入帧数
	Size      int64    `gorm:"column:size" json:"size"`                   // 文件大小（字节）
	Outcome   string   `gorm:"column:outcome" json:"outcome"`             // completed/stopped/failed
	Error     string   `gorm:"column:error" json:"error,omitempty"`
	CreatedAt orm.Time `gorm:"column:created_at" json:"created_at"`
}

func (*Recording) TableName() string {
	return "recordings"
}

// Video 存储目录中的一个录像文件
type Video struct {
	Filename string  `json:"filename"`
	Path     string  `json:"path"` // 相对存储目录，可直接用于 /api/video/<path>
	Size     int64   `json:"size"`
	Created  string  `json:"created"`
	Duration float64 `json:"duration"` // 读取失败时为 0
}
