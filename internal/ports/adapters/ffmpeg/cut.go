package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/types"
)

// CutAndConcat cuts every range into its own segment file, encoding
// re-encode segments in parallel, then joins them in range order with the
// concat demuxer. One failed segment aborts the whole render.
func (a *Adapter) CutAndConcat(ctx context.Context, in string, ranges []render.Range, out string) error {
	if len(ranges) == 0 {
		return apperr.New(apperr.KindRender, "no ranges to render")
	}
	start := time.Now()

	enc := encodeSettings{}
	if (render.Instruction{Ranges: ranges}).Count(render.ModeReencode) > 0 {
		info, err := a.Probe(ctx, in)
		if err != nil {
			return apperr.Wrap(apperr.KindRender, "probe source for re-encode", err)
		}
		enc = settingsFor(info, a.opts.Preset, a.opts.CRF)
	}

	workDir, err := os.MkdirTemp(filepath.Dir(out), ".autocut-segments-")
	if err != nil {
		return apperr.Wrap(apperr.KindRender, "create segment dir", err)
	}
	defer os.RemoveAll(workDir)

	ext := filepath.Ext(out)
	if ext == "" {
		ext = ".mp4"
	}
	segments := make([]string, len(ranges))
	for i := range ranges {
		segments[i] = filepath.Join(workDir, fmt.Sprintf("seg_%05d%s", i, ext))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			b, err := a.run(gctx, a.ffmpeg, segmentArgs(in, r, segments[i], enc)...)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() == nil {
					// Another segment failed first; that error is the one reported.
					return err
				}
				return apperr.Wrap(apperr.KindRender, fmt.Sprintf("cut segment %d (%s)", i, r.Mode), fmt.Errorf("%w\n%s", err, tail(b))).
					WithRange(r.Source)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	list := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(list, []byte(concatList(segments)), 0o644); err != nil {
		return apperr.Wrap(apperr.KindRender, "write concat list", err)
	}

	err = a.atomic(out, func(tmp string) error {
		args := []string{"-y", "-f", "concat", "-safe", "0", "-i", list, "-map", "0", "-c", "copy"}
		args = append(args, muxFlags(out)...)
		if b, err := a.run(ctx, a.ffmpeg, append(args, tmp)...); err != nil {
			return fmt.Errorf("ffmpeg concat: %w\n%s", err, tail(b))
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindRender, "concat segments", err)
	}

	a.log.Info("render done",
		zap.String("out", out),
		zap.Int("segments", len(ranges)),
		zap.Int("reencoded", render.Instruction{Ranges: ranges}.Count(render.ModeReencode)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

type encodeSettings struct {
	videoCodec string
	pixFmt     string
	fps        float64
	audioCodec string
	sampleRate int
	channels   int
	preset     string
	crf        int
}

// settingsFor picks encoder parameters that match the source streams so
// re-encoded segments concatenate with stream-copied ones.
func settingsFor(info types.MediaInfo, preset string, crf int) encodeSettings {
	s := encodeSettings{preset: preset, crf: crf, audioCodec: "aac"}
	if v := info.Video; v != nil {
		s.videoCodec = "libx264"
		if v.Codec == "hevc" {
			s.videoCodec = "libx265"
		}
		s.pixFmt = v.PixFmt
		s.fps = v.FPS
	}
	if au := info.Audio; au != nil {
		switch au.Codec {
		case "mp3":
			s.audioCodec = "libmp3lame"
		case "opus":
			s.audioCodec = "libopus"
		case "pcm_s16le":
			s.audioCodec = "pcm_s16le"
		}
		s.sampleRate = au.SampleRate
		s.channels = au.Channels
	}
	return s
}

// segmentArgs seeks before -i (fast, keyframe-based for copies, exact for
// re-encodes since ffmpeg decodes from the prior keyframe).
func segmentArgs(in string, r render.Range, out string, enc encodeSettings) []string {
	args := []string{
		"-y",
		"-ss", fmtSeconds(r.Source.Start),
		"-i", in,
		"-t", fmtSeconds(r.Source.Duration()),
		"-map", "0:v:0?",
		"-map", "0:a:0?",
	}
	if r.Mode == render.ModeCopy {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
		return append(args, out)
	}

	if enc.videoCodec != "" {
		args = append(args, "-c:v", enc.videoCodec, "-preset", enc.preset, "-crf", strconv.Itoa(enc.crf))
		if enc.pixFmt != "" {
			args = append(args, "-pix_fmt", enc.pixFmt)
		}
		if enc.fps > 0 {
			args = append(args, "-r", strconv.FormatFloat(enc.fps, 'f', -1, 64))
		}
	}
	args = append(args, "-c:a", enc.audioCodec)
	if enc.audioCodec != "pcm_s16le" {
		args = append(args, "-b:a", "192k")
	}
	if enc.sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(enc.sampleRate))
	}
	if enc.channels > 0 {
		args = append(args, "-ac", strconv.Itoa(enc.channels))
	}
	return append(args, out)
}

func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
