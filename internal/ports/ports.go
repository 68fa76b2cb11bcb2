package ports

import (
	"context"

	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

// VideoTool wraps the media toolchain. Every method that writes a file
// must leave nothing at the output path when it fails or is cancelled.
type VideoTool interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
	ExtractAudio(ctx context.Context, in, out string) error
	CutAndConcat(ctx context.Context, in string, ranges []render.Range, out string) error
	BurnCaptions(ctx context.Context, in, assPath, out string) error
}

type ASR interface {
	Transcribe(ctx context.Context, audioPath, cacheDir string) (types.Transcript, error)
	// AudioExt is the container the backend wants its input in (".wav").
	AudioExt() string
}

// TangentDetector supplies off-topic spans. Its output is opaque to the
// planner and merged in as TANGENT spans.
type TangentDetector interface {
	DetectTangents(ctx context.Context, tr types.Transcript) ([]timeline.Span, error)
}
