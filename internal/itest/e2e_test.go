//go:build integration

package itest

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/autocut/internal/config"
	"github.com/forPelevin/autocut/internal/pipeline"
	"github.com/forPelevin/autocut/internal/storage"
	"github.com/forPelevin/autocut/internal/types"
)

func TestE2E_EditRemovesLongPause(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")

	// Two spoken sentences separated by four seconds of silence.
	first := filepath.Join(tmp, "first.wav")
	second := filepath.Join(tmp, "second.wav")
	for path, text := range map[string]string{
		first:  "Here is the key idea. Um, step one is to measure everything.",
		second: "Step two is to compare the results with last week.",
	} {
		if b, err := exec.Command("espeak-ng", "-w", path, text).CombinedOutput(); err != nil {
			t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
		}
	}
	ff := exec.Command("ffmpeg",
		"-y",
		"-i", first,
		"-f", "lavfi", "-t", "4", "-i", "anullsrc=r=22050:cl=mono",
		"-i", second,
		"-f", "lavfi", "-i", "color=c=black:s=640x360:d=30",
		"-filter_complex", "[0:a][1:a][2:a]concat=n=3:v=0:a=1[a]",
		"-map", "3:v", "-map", "[a]",
		"-shortest",
		"-c:v", "libx264", "-g", "25",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}

	settings := config.Default()
	settings.OutDir = filepath.Join(tmp, "out")
	settings.CacheDir = filepath.Join(tmp, "cache")
	settings.Transcribe.WhisperBin = filepath.Join(repoRoot, ".cache", "bin", "whisper.cpp")
	settings.Transcribe.WhisperModel = filepath.Join(repoRoot, ".cache", "models", "ggml-base.bin")
	if v := os.Getenv("WHISPER_BIN"); v != "" {
		settings.Transcribe.WhisperBin = v
	}
	if v := os.Getenv("WHISPER_MODEL"); v != "" {
		settings.Transcribe.WhisperModel = v
	}

	history, err := storage.Open(filepath.Join(tmp, "history.db"))
	require.NoError(t, err)
	defer history.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cfg := pipeline.Config{Input: in, Settings: settings, History: history}
	require.NoError(t, cfg.Validate())
	res, err := pipeline.Run(ctx, cfg)
	require.NoError(t, err, "pipeline failed")

	b, err := os.ReadFile(filepath.Join(res.RunDir, "manifest.json"))
	require.NoError(t, err)
	var m types.Manifest
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotEqual(t, pipeline.StatusFailed, m.Status)
	assert.Greater(t, m.Removed["silence"], 2.0)

	origSec, err := probeDurationSeconds(in)
	require.NoError(t, err)
	editedSec, err := probeDurationSeconds(res.Output)
	require.NoError(t, err)
	assert.Less(t, editedSec, origSec-2)
	assert.InDelta(t, m.Edited, editedSec, 0.5)

	assert.FileExists(t, filepath.Join(res.RunDir, "captions.srt"))
	assert.FileExists(t, filepath.Join(res.RunDir, "plan.json"))

	jobs, err := history.ListJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, res.Output, jobs[0].Output)
}
