package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/forPelevin/autocut/internal/types"
)

// Probe reads container and stream metadata and, for video, the keyframe
// index used to decide which cuts can be stream-copied.
func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaInfo, error) {
	b, err := a.run(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return types.MediaInfo{}, fmt.Errorf("ffprobe: %w\n%s", err, tail(b))
	}
	info, err := ParseProbeJSON(path, b)
	if err != nil {
		return types.MediaInfo{}, err
	}
	if !info.HasVideo() || a.opts.SkipKeyframes {
		return info, nil
	}

	kb, err := a.run(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts_time,flags",
		"-of", "json",
		path,
	)
	if err != nil {
		// Without an index every segment is re-encoded, which is slow but correct.
		a.log.Warn("keyframe scan failed", zap.String("path", path), zap.Error(err))
		return info, nil
	}
	if info.Keyframes, err = ParseKeyframesJSON(kb); err != nil {
		a.log.Warn("keyframe scan unreadable", zap.String("path", path), zap.Error(err))
	}
	return info, nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	Duration     string `json:"duration"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// ParseProbeJSON maps ffprobe -show_format -show_streams output to MediaInfo.
// The first real video stream (cover art excluded) and first audio stream win.
func ParseProbeJSON(path string, b []byte) (types.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.MediaInfo{}, fmt.Errorf("decode ffprobe json: %w", err)
	}

	info := types.MediaInfo{
		Path:       path,
		FormatName: out.Format.FormatName,
		Duration:   parseFloat(out.Format.Duration),
		Size:       int64(parseFloat(out.Format.Size)),
		BitRate:    int64(parseFloat(out.Format.BitRate)),
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.Video != nil || s.Disposition.AttachedPic == 1 {
				continue
			}
			fps := parseRate(s.AvgFrameRate)
			if fps <= 0 {
				fps = parseRate(s.RFrameRate)
			}
			info.Video = &types.Video{Codec: s.CodecName, Width: s.Width, Height: s.Height, FPS: fps, PixFmt: s.PixFmt}
		case "audio":
			if info.Audio != nil {
				continue
			}
			info.Audio = &types.Audio{Codec: s.CodecName, SampleRate: int(parseFloat(s.SampleRate)), Channels: s.Channels}
		}
		if info.Duration <= 0 {
			info.Duration = parseFloat(s.Duration)
		}
	}

	if info.Duration <= 0 {
		return types.MediaInfo{}, fmt.Errorf("ffprobe: %s has no duration", path)
	}
	if info.Video == nil && info.Audio == nil {
		return types.MediaInfo{}, fmt.Errorf("ffprobe: %s has no audio or video stream", path)
	}
	return info, nil
}

// ParseKeyframesJSON extracts keyframe times from a packet listing.
func ParseKeyframesJSON(b []byte) ([]float64, error) {
	var out struct {
		Packets []struct {
			PTSTime string `json:"pts_time"`
			Flags   string `json:"flags"`
		} `json:"packets"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode keyframes: %w", err)
	}
	kf := make([]float64, 0, len(out.Packets)/30+1)
	for _, p := range out.Packets {
		if !strings.Contains(p.Flags, "K") {
			continue
		}
		t, err := strconv.ParseFloat(p.PTSTime, 64)
		if err != nil {
			continue
		}
		kf = append(kf, t)
	}
	sort.Float64s(kf)
	return kf, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseRate handles ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
