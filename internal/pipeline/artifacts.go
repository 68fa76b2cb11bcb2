package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
	"github.com/forPelevin/autocut/internal/usecase"
)

// runArtifacts writes stage results into a run directory as they arrive.
// files maps an artifact name to its path relative to the directory.
type runArtifacts struct {
	dir   string
	cues  subtitles.Options
	files map[string]string
}

func newRunArtifacts(dir string, cues subtitles.Options) *runArtifacts {
	return &runArtifacts{dir: dir, cues: cues, files: map[string]string{}}
}

func (a *runArtifacts) path(name, file string) string {
	a.files[name] = file
	return filepath.Join(a.dir, file)
}

func (a *runArtifacts) Probe(info types.MediaInfo) error {
	return WriteJSON(a.path("probe", "probe.json"), info)
}

func (a *runArtifacts) Transcript(tr types.Transcript) error {
	if err := usecase.WriteTranscript(a.path("transcript", "transcript.json"), tr); err != nil {
		return err
	}
	if err := usecase.WriteAtomic(a.path("transcript_srt", "transcript.srt"), func(f *os.File) error {
		return subtitles.WriteTranscriptSRT(f, tr.Words, a.cues)
	}); err != nil {
		return err
	}
	return usecase.WriteAtomic(a.path("transcript_txt", "transcript.txt"), func(f *os.File) error {
		_, err := fmt.Fprintln(f, tr.Text())
		return err
	})
}

func (a *runArtifacts) Plan(res usecase.PlanResult) error {
	b, err := timeline.MarshalSpans(res.Spans)
	if err != nil {
		return err
	}
	if err := usecase.WriteAtomic(a.path("spans", "spans.json"), func(f *os.File) error {
		_, err := f.Write(b)
		return err
	}); err != nil {
		return err
	}
	return SavePlan(a.path("plan", "plan.json"), res.Plan)
}

func (a *runArtifacts) captions(cues []subtitles.Cue) error {
	return usecase.WriteAtomic(a.path("captions_srt", "captions.srt"), func(f *os.File) error {
		return subtitles.WriteSRT(f, cues)
	})
}

// SavePlan writes plan atomically in the versioned plan format.
func SavePlan(path string, plan timeline.EditPlan) error {
	return usecase.WriteAtomic(path, func(f *os.File) error {
		return timeline.WritePlan(f, plan)
	})
}

// LoadPlan reads and validates a plan written by SavePlan.
func LoadPlan(path string) (timeline.EditPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return timeline.EditPlan{}, err
	}
	defer f.Close()
	plan, err := timeline.ReadPlan(f)
	if err != nil {
		return timeline.EditPlan{}, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

func WriteJSON(path string, v any) error {
	return usecase.WriteAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}
