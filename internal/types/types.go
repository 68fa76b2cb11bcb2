package types

import "strings"

// Transcript is the word-level output of a transcriber. Words are ordered by
// start time and never mutated after transcription.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	Words    []Word    `json:"words"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

func (w Word) Duration() float64 { return w.End - w.Start }

// Text joins all words with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Words))
	for _, w := range t.Words {
		if s := strings.TrimSpace(w.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// MediaInfo is the static metadata of a source file. Keyframes holds the
// presentation times (seconds) of video keyframes; nil means unknown.
type MediaInfo struct {
	Path       string    `json:"path"`
	FormatName string    `json:"format_name,omitempty"`
	Duration   float64   `json:"duration"`
	Size       int64     `json:"size,omitempty"`
	BitRate    int64     `json:"bit_rate,omitempty"`
	Video      *Video    `json:"video,omitempty"`
	Audio      *Audio    `json:"audio,omitempty"`
	Keyframes  []float64 `json:"keyframes,omitempty"`
}

type Video struct {
	Codec  string  `json:"codec"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	PixFmt string  `json:"pix_fmt,omitempty"`
}

type Audio struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (m MediaInfo) HasVideo() bool { return m.Video != nil }

// Manifest indexes the artifacts written for one edit run.
type Manifest struct {
	Input     string             `json:"input"`
	Output    string             `json:"output,omitempty"`
	Status    string             `json:"status"`
	Warnings  []string           `json:"warnings,omitempty"`
	Error     string             `json:"error,omitempty"`
	Original  float64            `json:"original_sec"`
	Edited    float64            `json:"edited_sec"`
	Removed   map[string]float64 `json:"removed_sec,omitempty"`
	Segments  int                `json:"segments"`
	Reencoded int                `json:"reencoded_segments"`
	Artifacts map[string]string  `json:"artifacts"`
}
