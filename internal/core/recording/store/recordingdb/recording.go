package recordingdb

import (
	"context"
	"time"

	"github.com/Aeell/HomeEyeView/internal/core/recording"
	"github.com/ixugo/goddd/pkg/orm"
)

var _ recording.RecordingStorer = Recording{}

// Recording Related business namespaces
type Recording DB

// Find 按条件分页查询，按开始时间倒序
func (d Recording) Find(ctx context.Context, out *[]*recording.Recording, in *recording.FindRecordingInput) (int64, error) {
	db := d.db.WithContext(ctx).Model(new(recording.Recording))
	if in.Date != "" {
		db = db.Where("date = ?", in.Date)
	}
	if in.Origin != "" {
		db = db.Where("origin = ?", in.Origin)
	}
	if in.Outcome != "" {
		db = db.Where("outcome = ?", in.Outcome)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil || total == 0 {
		return total, err
	}
	err := db.Order("started_at DESC").Offset(in.Offset()).Limit(in.Limit()).Find(out).Error
	return total, err
}

func (d Recording) Get(ctx context.Context, out *recording.Recording, id int64) error {
	return d.db.WithContext(ctx).Where("id=?", id).First(out).Error
}

func (d Recording) Add(ctx context.Context, r *recording.Recording) error {
	return d.db.WithContext(ctx).Create(r).Error
}

// DeleteStartedBefore 删除开始时间早于 t 的记录
func (d Recording) DeleteStartedBefore(ctx context.Context, t time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Where("started_at < ?", orm.Time{Time: t}).Delete(new(recording.Recording))
	return res.RowsAffected, res.Error
}
