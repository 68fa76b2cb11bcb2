package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/autocut/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Adapter{bin: binPath, model: modelPath}
}

func (a *Adapter) AudioExt() string { return ".wav" }

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	if a.model == "" {
		return types.Transcript{}, fmt.Errorf("whisper.cpp: model path is required")
	}
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-ojf",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, err
	}
	return ParseJSON(jb)
}

// whisper.cpp -ojf output. Offsets are milliseconds.
type fullOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets offsets `json:"offsets"`
		Text    string  `json:"text"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
			P       float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ParseJSON converts whisper.cpp full JSON into a word-level transcript.
// Sub-word tokens are glued to the previous word unless they start with a
// space; special tokens like [_BEG_] are skipped.
func ParseJSON(b []byte) (types.Transcript, error) {
	var out fullOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("decode whisper.cpp json: %w", err)
	}

	tr := types.Transcript{Language: out.Result.Language}
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			tr.Segments = append(tr.Segments, types.Segment{Start: ms(seg.Offsets.From), End: ms(seg.Offsets.To), Text: text})
		}

		var cur *types.Word
		var probs []float64
		flush := func() {
			if cur == nil {
				return
			}
			cur.Text = strings.TrimSpace(cur.Text)
			if cur.Text != "" {
				cur.Confidence = mean(probs)
				tr.Words = append(tr.Words, *cur)
			}
			cur, probs = nil, nil
		}
		for _, tok := range seg.Tokens {
			if strings.HasPrefix(tok.Text, "[_") || (cur == nil && strings.TrimSpace(tok.Text) == "") {
				continue
			}
			if cur == nil || strings.HasPrefix(tok.Text, " ") {
				flush()
				cur = &types.Word{Start: ms(tok.Offsets.From)}
			}
			cur.Text += tok.Text
			cur.End = ms(tok.Offsets.To)
			probs = append(probs, tok.P)
		}
		flush()
	}

	sort.SliceStable(tr.Words, func(i, j int) bool { return tr.Words[i].Start < tr.Words[j].Start })
	if n := len(tr.Words); n > 0 {
		tr.Duration = tr.Words[n-1].End
	}
	return tr, nil
}

func ms(v int64) float64 { return float64(v) / 1000 }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
