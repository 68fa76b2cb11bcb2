package subtitles

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// ASSStyle sizes the burned-in captions for the output frame.
type ASSStyle struct {
	Width    int
	Height   int
	FontName string
	FontSize int
}

func DefaultASSStyle() ASSStyle {
	return ASSStyle{Width: 1920, Height: 1080, FontName: "Inter", FontSize: 64}
}

// WriteASS writes karaoke-timed cues for burning into the video. Each word
// is highlighted for its own duration.
func WriteASS(w io.Writer, cues []Cue, style ASSStyle) error {
	_, err := io.WriteString(w, RenderASS(cues, style))
	return err
}

func RenderASS(cues []Cue, style ASSStyle) string {
	style = assStyleDefaults(style)

	var b strings.Builder
	b.WriteString(assHeader(style))
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(c.Start))
		b.WriteString(",")
		b.WriteString(assTime(c.End))
		b.WriteString(",Caption,,0,0,0,,")
		if len(c.Lines) == 0 {
			b.WriteString(sanitizeASS(strings.ReplaceAll(c.Text, "\n", " ")))
			b.WriteString("\n")
			continue
		}
		for li, ln := range c.Lines {
			if li > 0 {
				b.WriteString("\\N")
			}
			for wi, w := range ln {
				if wi > 0 {
					b.WriteString(" ")
				}
				cs := int(math.Round((w.End - w.Start) * 100))
				if cs < 1 {
					cs = 1
				}
				fmt.Fprintf(&b, "{\\k%d}%s", cs, sanitizeASS(w.Text))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader(s ASSStyle) string {
	marginV := s.Height / 14
	return fmt.Sprintf(strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, %s, %d, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,4,1,2, 60,60,%d,1
`), s.Width, s.Height, s.FontName, s.FontSize, marginV)
}

func assStyleDefaults(s ASSStyle) ASSStyle {
	d := DefaultASSStyle()
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = d.Width, d.Height
	}
	if s.FontName == "" {
		s.FontName = d.FontName
	}
	if s.FontSize <= 0 {
		s.FontSize = s.Height * d.FontSize / d.Height
	}
	return s
}

// assTime renders H:MM:SS.cc as ASS expects.
func assTime(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	cs := int64(math.Round(sec * 100))
	h := cs / 360_000
	cs -= h * 360_000
	m := cs / 6000
	cs -= m * 6000
	s := cs / 100
	cs -= s * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}
