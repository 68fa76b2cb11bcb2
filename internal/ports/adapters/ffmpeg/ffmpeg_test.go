package ffmpeg

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/autocut/internal/domain/render"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

const probeSample = `{
  "streams": [
    {"codec_type": "video", "codec_name": "mjpeg", "width": 300, "height": 300, "disposition": {"attached_pic": 1}},
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "pix_fmt": "yuv420p",
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1", "disposition": {"attached_pic": 0}},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "125.500000", "size": "1048576", "bit_rate": "66846"}
}`

func TestParseProbeJSON(t *testing.T) {
	t.Parallel()

	info, err := ParseProbeJSON("in.mp4", []byte(probeSample))
	if err != nil {
		t.Fatal(err)
	}
	if info.Duration != 125.5 || info.Size != 1048576 || info.BitRate != 66846 {
		t.Fatalf("unexpected format fields: %+v", info)
	}
	if info.Video == nil || info.Video.Codec != "h264" || info.Video.Width != 1920 {
		t.Fatalf("expected h264 video stream, got %+v", info.Video)
	}
	if fps := info.Video.FPS; fps < 29.97 || fps > 29.98 {
		t.Fatalf("fps = %v", fps)
	}
	if info.Audio == nil || info.Audio.SampleRate != 48000 || info.Audio.Channels != 2 {
		t.Fatalf("unexpected audio: %+v", info.Audio)
	}
}

func TestParseProbeJSON_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"garbage":     `nope`,
		"no duration": `{"streams":[{"codec_type":"audio","codec_name":"aac"}],"format":{}}`,
		"no streams":  `{"streams":[{"codec_type":"data"}],"format":{"duration":"3.0"}}`,
	}
	for name, body := range tests {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseProbeJSON("x", []byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseKeyframesJSON(t *testing.T) {
	t.Parallel()

	kf, err := ParseKeyframesJSON([]byte(`{"packets":[
		{"pts_time":"4.004000","flags":"K__"},
		{"pts_time":"0.000000","flags":"K_"},
		{"pts_time":"0.033367","flags":"__"},
		{"pts_time":"N/A","flags":"K_"}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(kf) != 2 || kf[0] != 0 || kf[1] != 4.004 {
		t.Fatalf("unexpected keyframes: %v", kf)
	}
}

func TestSegmentArgs(t *testing.T) {
	t.Parallel()

	src := timeline.TimeRange{Start: 1.5, End: 4.25}
	copyArgs := strings.Join(segmentArgs("in.mp4", render.Range{Source: src, Mode: render.ModeCopy}, "seg.mp4", encodeSettings{}), " ")
	if copyArgs != "-y -ss 1.500 -i in.mp4 -t 2.750 -map 0:v:0? -map 0:a:0? -c copy -avoid_negative_ts make_zero seg.mp4" {
		t.Fatalf("unexpected copy args: %s", copyArgs)
	}

	enc := settingsFor(types.MediaInfo{
		Video: &types.Video{Codec: "hevc", PixFmt: "yuv420p10le", FPS: 25},
		Audio: &types.Audio{Codec: "aac", SampleRate: 44100, Channels: 1},
	}, "fast", 20)
	reArgs := strings.Join(segmentArgs("in.mp4", render.Range{Source: src, Mode: render.ModeReencode}, "seg.mp4", enc), " ")
	for _, want := range []string{"-c:v libx265", "-preset fast", "-crf 20", "-pix_fmt yuv420p10le", "-r 25", "-c:a aac", "-ar 44100", "-ac 1"} {
		if !strings.Contains(reArgs, want) {
			t.Fatalf("expected %q in %s", want, reArgs)
		}
	}
	if strings.Contains(reArgs, "-c copy") {
		t.Fatalf("re-encode must not stream copy: %s", reArgs)
	}
}

func TestConcatListPreservesOrder(t *testing.T) {
	t.Parallel()

	got := concatList([]string{"/tmp/a/seg_00000.mp4", "/tmp/it's/seg_00001.mp4"})
	want := "file '/tmp/a/seg_00000.mp4'\nfile '/tmp/it'\\''s/seg_00001.mp4'\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPartialPath(t *testing.T) {
	t.Parallel()

	p := partialPath(filepath.Join("out", "final.mp4"))
	if filepath.Dir(p) != "out" {
		t.Fatalf("partial file must live next to the output: %s", p)
	}
	base := filepath.Base(p)
	if !strings.HasPrefix(base, ".final.") || !strings.HasSuffix(base, ".partial.mp4") {
		t.Fatalf("unexpected partial name: %s", base)
	}
	if partialPath("final.mp4") == partialPath("final.mp4") {
		t.Fatal("partial paths must be unique")
	}
}

func TestEscapeFilterPath(t *testing.T) {
	t.Parallel()

	if got := escapeFilterPath(`C:\subs\it's.ass`); got != `C\:\\subs\\it\'s.ass` {
		t.Fatalf("unexpected escape: %s", got)
	}
}
