package recording

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// Playlist 生成某一天所有 mp4 录像的 m3u8 文件列表，只读取该日期目录
// 条目是完整的 mp4 文件而不是 TS/fMP4 分片，供 VLC、mpv 等按文件播放的客户端连续回放，
// 浏览器的 HLS 播放器不支持
// 每个文件之间插入 DISCONTINUITY，播放器需要重置解码器
func (c Core) Playlist(ctx context.Context, date, prefix string) (string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, date)
	}
	all, err := c.listDate(ctx, date)
	if err != nil {
		return "", fmt.Errorf("no recordings on %s: %w", date, err)
	}
	videos := make([]Video, 0, len(all))
	for _, v := range all {
		if strings.EqualFold(path.Ext(v.Filename), ".mp4") {
			videos = append(videos, v)
		}
	}
	if len(videos) == 0 {
		return "", fmt.Errorf("no mp4 recordings on %s", date)
	}

	pl, err := m3u8.NewMediaPlaylist(0, uint(len(videos)))
	if err != nil {
		return "", err
	}
	pl.MediaType = m3u8.VOD

	slices.SortFunc(videos, func(a, b Video) int { return strings.Compare(a.Created, b.Created) })
	for i, v := range videos {
		uri := strings.TrimSuffix(prefix, "/") + "/" + (&url.URL{Path: v.Path}).EscapedPath()
		if err := pl.Append(uri, v.Duration, ""); err != nil {
			return "", err
		}
		// 标记在当前片段上，输出在该片段之前
		if i > 0 {
			_ = pl.SetDiscontinuity()
		}
	}
	pl.Close()
	return pl.String(), nil
}
