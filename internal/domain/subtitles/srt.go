package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/forPelevin/autocut/internal/types"
)

// FormatSRTTime renders seconds as HH:MM:SS,mmm, rounded to the millisecond.
func FormatSRTTime(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func WriteSRT(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	for i, c := range cues {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n", c.Index, FormatSRTTime(c.Start), FormatSRTTime(c.End), c.Text)
	}
	return bw.Flush()
}

// WriteTranscriptSRT captions the unedited transcript.
func WriteTranscriptSRT(w io.Writer, words []types.Word, opts Options) error {
	return WriteSRT(w, BuildCues(words, nil, opts))
}
