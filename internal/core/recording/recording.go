package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
)

// RecordingStorer Instantiation interface
type RecordingStorer interface {
	Find(context.Context, *[]*Recording, *FindRecordingInput) (int64, error)
	Get(context.Context, *Recording, int64) error
	Add(context.Context, *Recording) error
	DeleteStartedBefore(context.Context, time.Time) (int64, error)
}

// FindRecordings 分页查询录像历史
func (c Core) FindRecordings(ctx context.Context, in *FindRecordingInput) ([]*Recording, int64, error) {
	items := make([]*Recording, 0, in.Limit())
	total, err := c.store.Recording().Find(ctx, &items, in)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetRecording Query a single object
func (c Core) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	var out Recording
	if err := c.store.Recording().Get(ctx, &out, id); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// AddRecording Insert into database
func (c Core) AddRecording(ctx context.Context, in *AddRecordingInput) (*Recording, error) {
	var out Recording
	if err := copier.Copy(&out, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}
	out.CreatedAt = orm.Now()
	if err := c.store.Recording().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return &out, nil
}

// SaveResult 录像结束时写入历史，作为 Recorder 的结束回调
func (c Core) SaveResult(res Result) {
	if c.store == nil {
		return
	}
	rel, err := filepath.Rel(c.conf.StorageDir, res.Path)
	if err != nil {
		rel = res.Path
	}
	in := AddRecordingInput{
		SessionID: res.ID,
		Origin:    string(res.Origin),
		Date:      res.StartedAt.Format(dateLayout),
		Path:      filepath.ToSlash(rel),
		StartedAt: orm.Time{Time: res.StartedAt},
		EndedAt:   orm.Time{Time: res.EndedAt},
		Duration:  res.EndedAt.Sub(res.StartedAt).Seconds(),
		Frames:    res.Frames,
		Outcome:   string(res.Outcome),
	}
	if res.Err != nil {
		in.Error = res.Err.Error()
	}
	if fi, err := os.Stat(res.Path); err == nil {
		in.Size = fi.Size()
	}
	if _, err := c.AddRecording(context.Background(), &in); err != nil {
		slog.Warn("save recording history failed", "path", in.Path, "err", err)
	}
}
