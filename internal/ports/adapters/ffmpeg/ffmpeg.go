package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	FFmpegPath  string
	FFprobePath string
	// Workers bounds concurrent segment encodes; 0 means runtime.NumCPU().
	Workers int
	Preset  string
	CRF     int
	// SkipKeyframes disables the keyframe scan in Probe.
	SkipKeyframes bool
	Logger        *zap.Logger
}

type Adapter struct {
	ffmpeg  string
	ffprobe string
	opts    Options
	log     *zap.Logger
}

func New(opts Options) *Adapter {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Preset == "" {
		opts.Preset = "veryfast"
	}
	if opts.CRF <= 0 {
		opts.CRF = 18
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{ffmpeg: opts.FFmpegPath, ffprobe: opts.FFprobePath, opts: opts, log: log.Named("ffmpeg")}
}

// ExtractAudio writes mono 16 kHz audio; the codec follows the output
// extension (.wav for local models, .mp3 for uploads).
func (a *Adapter) ExtractAudio(ctx context.Context, in, out string) error {
	args := []string{"-y", "-i", in, "-vn", "-ac", "1", "-ar", "16000"}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".mp3":
		args = append(args, "-c:a", "libmp3lame", "-b:a", "48k")
	default:
		args = append(args, "-c:a", "pcm_s16le")
	}
	return a.atomic(out, func(tmp string) error {
		if b, err := a.run(ctx, a.ffmpeg, append(args, tmp)...); err != nil {
			return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, tail(b))
		}
		return nil
	})
}

// BurnCaptions renders an ASS file into the video stream.
func (a *Adapter) BurnCaptions(ctx context.Context, in, assPath, out string) error {
	return a.atomic(out, func(tmp string) error {
		args := []string{
			"-y",
			"-i", in,
			"-vf", "subtitles=" + escapeFilterPath(assPath),
			"-c:v", "libx264",
			"-preset", a.opts.Preset,
			"-crf", strconv.Itoa(a.opts.CRF),
			"-c:a", "copy",
		}
		args = append(args, muxFlags(out)...)
		if b, err := a.run(ctx, a.ffmpeg, append(args, tmp)...); err != nil {
			return fmt.Errorf("ffmpeg burn captions: %w\n%s", err, tail(b))
		}
		return nil
	})
}

// atomic runs write against a hidden temp path next to out and renames it
// into place only on success.
func (a *Adapter) atomic(out string, write func(tmp string) error) error {
	tmp := partialPath(out)
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote %s: %w", out, err)
	}
	return nil
}

func (a *Adapter) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	a.log.Debug("exec", zap.String("bin", bin), zap.Strings("args", args))
	cmd := exec.CommandContext(ctx, bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() != nil {
		return b, ctx.Err()
	}
	return b, err
}

// partialPath keeps the extension last so ffmpeg still picks the muxer.
func partialPath(out string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+name+"."+uuid.NewString()[:8]+".partial"+ext)
}

func muxFlags(out string) []string {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".mp4", ".mov", ".m4a", ".m4v":
		return []string{"-movflags", "+faststart"}
	default:
		return nil
	}
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

// tail trims tool output to the last few lines worth surfacing.
func tail(b []byte) string {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > 15 {
		lines = lines[len(lines)-15:]
	}
	return strings.Join(lines, "\n")
}
