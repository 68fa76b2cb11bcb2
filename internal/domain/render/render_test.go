package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

func h264(keyframes ...float64) types.MediaInfo {
	return types.MediaInfo{
		Duration:  20,
		Video:     &types.Video{Codec: "h264", Width: 1920, Height: 1080, FPS: 30},
		Audio:     &types.Audio{Codec: "aac", SampleRate: 48000, Channels: 2},
		Keyframes: keyframes,
	}
}

func plan(keeps ...timeline.TimeRange) timeline.EditPlan {
	return timeline.NewPlan(keeps, 20, map[timeline.Reason]float64{timeline.ReasonSilence: 1})
}

func TestTranslateBoundaryModes(t *testing.T) {
	t.Parallel()

	p := plan(
		timeline.TimeRange{Start: 0, End: 4.02},  // 0 and near keyframe 4
		timeline.TimeRange{Start: 6, End: 7.5},   // 7.5 is off-grid
		timeline.TimeRange{Start: 10.03, End: 20}, // just after keyframe 10, media end
	)
	instr, err := Translate(p, h264(0, 2, 4, 6, 8, 10, 12), nil, DefaultOptions())
	require.NoError(t, err)

	modes := []BoundaryMode{instr.Ranges[0].Mode, instr.Ranges[1].Mode, instr.Ranges[2].Mode}
	assert.Equal(t, []BoundaryMode{ModeCopy, ModeReencode, ModeCopy}, modes)
	assert.Equal(t, 2, instr.Count(ModeCopy))
	assert.Equal(t, 1, instr.Count(ModeReencode))
	assert.InDelta(t, p.EditedDuration, instr.Duration(), 1e-9)
	for i, r := range instr.Ranges {
		assert.Equal(t, p.KeepSegments[i], r.Source)
	}
}

func TestTranslateStartBeforeKeyframeReencodes(t *testing.T) {
	t.Parallel()

	// Copying from 9.97 would seek back to keyframe 8 and bring the cut
	// stretch [8, 9.97) back into the output.
	p := plan(timeline.TimeRange{Start: 0, End: 5}, timeline.TimeRange{Start: 9.97, End: 20})
	instr, err := Translate(p, h264(0, 2, 4, 6, 8, 10, 12), nil, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, instr.Ranges, 2)
	assert.Equal(t, ModeReencode, instr.Ranges[1].Mode)
	assert.Equal(t, timeline.TimeRange{Start: 9.97, End: 20}, instr.Ranges[1].Source)

	// An end boundary just before a keyframe still copies.
	p = plan(timeline.TimeRange{Start: 2, End: 7.97})
	instr, err = Translate(p, h264(0, 2, 4, 6, 8, 10, 12), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeCopy, instr.Ranges[0].Mode)
}

func TestTranslateFallbacks(t *testing.T) {
	t.Parallel()

	p := plan(timeline.TimeRange{Start: 2, End: 4})

	tests := []struct {
		name  string
		media types.MediaInfo
		opts  Options
		want  BoundaryMode
	}{
		{name: "aligned", media: h264(2, 4), opts: DefaultOptions(), want: ModeCopy},
		{name: "no keyframe index", media: h264(), opts: DefaultOptions(), want: ModeReencode},
		{name: "audio only", media: types.MediaInfo{Duration: 20, Audio: &types.Audio{Codec: "mp3"}}, opts: DefaultOptions(), want: ModeCopy},
		{name: "uncopyable codec", media: func() types.MediaInfo { m := h264(2, 4); m.Video.Codec = "vp8"; return m }(), opts: DefaultOptions(), want: ModeReencode},
		{name: "forced", media: h264(2, 4), opts: Options{ForceReencode: true}, want: ModeReencode},
		{name: "tight tolerance", media: h264(2.03, 4), opts: Options{SnapTolerance: 0.01}, want: ModeReencode},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			instr, err := Translate(p, tt.media, nil, tt.opts)
			require.NoError(t, err)
			require.Len(t, instr.Ranges, 1)
			assert.Equal(t, tt.want, instr.Ranges[0].Mode)
		})
	}
}

func TestTranslateRejectsPlanLongerThanMedia(t *testing.T) {
	t.Parallel()

	p := timeline.NewPlan([]timeline.TimeRange{{Start: 0, End: 5}, {Start: 20, End: 30}}, 30, nil)
	_, err := Translate(p, h264(0, 5, 20), nil, DefaultOptions())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRender))
	assert.Contains(t, err.Error(), "plan covers 30.000s")

	// A container duration a few milliseconds short is fine.
	p = timeline.NewPlan([]timeline.TimeRange{{Start: 0, End: 20.02}}, 20.02, nil)
	_, err = Translate(p, h264(0), nil, DefaultOptions())
	assert.NoError(t, err)

	// Unknown media duration cannot be checked.
	media := h264(0)
	media.Duration = 0
	_, err = Translate(plan(timeline.TimeRange{Start: 0, End: 20}), media, nil, DefaultOptions())
	assert.NoError(t, err)
}

func TestTranslateCaptions(t *testing.T) {
	t.Parallel()

	words := []types.Word{
		{Text: "hello", Start: 2.1, End: 2.5},
		{Text: "gone", Start: 5, End: 5.5},
		{Text: "world", Start: 10.2, End: 10.6},
	}
	p := plan(timeline.TimeRange{Start: 2, End: 3}, timeline.TimeRange{Start: 10, End: 12})

	instr, err := Translate(p, h264(2, 10), words, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, instr.Cues, 2)
	assert.Equal(t, "hello", instr.Cues[0].Text)
	assert.InDelta(t, 0.1, instr.Cues[0].Start, 1e-9)
	assert.Equal(t, "world", instr.Cues[1].Text)
	assert.InDelta(t, 1.2, instr.Cues[1].Start, 1e-9)

	opts := DefaultOptions()
	opts.Captions = false
	instr, err = Translate(p, h264(2, 10), words, opts)
	require.NoError(t, err)
	assert.Empty(t, instr.Cues)
}

func TestTranslateRejectsInvalidPlan(t *testing.T) {
	t.Parallel()

	_, err := Translate(timeline.EditPlan{OriginalDuration: 5}, h264(), nil, DefaultOptions())
	assert.True(t, apperr.Is(err, apperr.KindRender))
}

func TestTranslateRoundTripIsIdentical(t *testing.T) {
	t.Parallel()

	words := []types.Word{
		{Text: "first", Start: 0.31, End: 0.77},
		{Text: "second", Start: 6.123456, End: 6.9},
		{Text: "third", Start: 15.5, End: 16.01},
	}
	p := plan(
		timeline.TimeRange{Start: 0.3, End: 3.3333333},
		timeline.TimeRange{Start: 6.1, End: 7.123456789},
		timeline.TimeRange{Start: 15.49, End: 19.9},
	)
	media := h264(0, 3.32, 6.1, 15.5)

	var buf bytes.Buffer
	require.NoError(t, timeline.WritePlan(&buf, p))
	loaded, err := timeline.ReadPlan(&buf)
	require.NoError(t, err)

	render := func(p timeline.EditPlan) []byte {
		instr, err := Translate(p, media, words, DefaultOptions())
		require.NoError(t, err)
		b, err := json.Marshal(instr)
		require.NoError(t, err)
		var srt bytes.Buffer
		require.NoError(t, subtitles.WriteSRT(&srt, instr.Cues))
		return append(b, srt.Bytes()...)
	}
	assert.Equal(t, render(p), render(loaded))
}

type mockEncoder struct{ mock.Mock }

func (m *mockEncoder) CutAndConcat(ctx context.Context, in string, ranges []Range, out string) error {
	return m.Called(ctx, in, ranges, out).Error(0)
}

func TestExecute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	instr := Instruction{Ranges: []Range{{Source: timeline.TimeRange{Start: 0, End: 1}, Mode: ModeCopy}}}

	enc := new(mockEncoder)
	enc.On("CutAndConcat", ctx, "in.mp4", instr.Ranges, "out.mp4").Return(nil).Once()
	require.NoError(t, Execute(ctx, enc, instr, "in.mp4", "out.mp4"))
	enc.AssertExpectations(t)

	failing := new(mockEncoder)
	failing.On("CutAndConcat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("ffmpeg exited 1"))
	err := Execute(ctx, failing, instr, "in.mp4", "out.mp4")
	assert.True(t, apperr.Is(err, apperr.KindRender))
	assert.Contains(t, err.Error(), "ffmpeg exited 1")

	pinned := apperr.New(apperr.KindRender, "segment 0").WithRange(timeline.TimeRange{Start: 0, End: 1})
	withRange := new(mockEncoder)
	withRange.On("CutAndConcat", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(pinned)
	assert.Same(t, pinned, Execute(ctx, withRange, instr, "in.mp4", "out.mp4"))

	assert.True(t, apperr.Is(Execute(ctx, enc, Instruction{}, "in.mp4", "out.mp4"), apperr.KindRender))
}
