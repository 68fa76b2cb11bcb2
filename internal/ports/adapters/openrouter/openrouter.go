package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/types"
)

const (
	requestTimeout = 90 * time.Second
	defaultScore   = 0.5
	// chunkTarget is the preferred chunk length; chunks close at the first
	// pause after it, or hard at chunkMax.
	chunkTarget = 20 * time.Second
	chunkMax    = 45 * time.Second
	chunkPause  = 800 * time.Millisecond
	maxChunks   = 400
)

// Adapter asks an LLM which transcript chunks digress from the main topic.
type Adapter struct {
	key    string
	model  string
	client *resty.Client
}

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	client := resty.New().
		SetBaseURL(normalizeBaseURL(baseURL)).
		SetTimeout(requestTimeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &Adapter{key: apiKey, model: model, client: client}
}

type chunk struct {
	Idx      int     `json:"idx"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`

	words []int
}

// DetectTangents returns one TANGENT span per chunk the model flags. A reply
// that cannot be parsed yields no spans rather than an error.
func (a *Adapter) DetectTangents(ctx context.Context, tr types.Transcript) ([]timeline.Span, error) {
	chunks := chunkTranscript(tr.Words)
	if len(chunks) < 2 {
		return nil, nil
	}

	pb, err := json.Marshal(map[string]any{"chunks": chunks})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(pb)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "autocut_tangents",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tangents": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"idx":    map[string]any{"type": "integer"},
									"score":  map[string]any{"type": "number"},
									"reason": map[string]any{"type": "string"},
								},
								"required": []string{"idx", "score", "reason"},
							},
						},
					},
					"required": []string{"tangents"},
				},
			},
		},
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&raw).
		Post("/api/v1/chat/completions")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return nil, fmt.Errorf("openrouter: %s", redactSecrets(err.Error(), a.key))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("openrouter status %d: %s", resp.StatusCode(), truncate(redactSecrets(resp.String(), a.key), 400))
	}
	if len(raw.Choices) == 0 {
		return nil, nil
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return nil, nil
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, nil
	}
	var out struct {
		Tangents []struct {
			Idx   int     `json:"idx"`
			Score float64 `json:"score"`
		} `json:"tangents"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, nil
	}

	seen := map[int]bool{}
	spans := make([]timeline.Span, 0, len(out.Tangents))
	for _, t := range out.Tangents {
		if t.Idx < 0 || t.Idx >= len(chunks) || seen[t.Idx] {
			continue
		}
		seen[t.Idx] = true
		c := chunks[t.Idx]
		score := t.Score
		if score <= 0 || score > 1 {
			score = defaultScore
		}
		spans = append(spans, timeline.Span{
			Range:       timeline.TimeRange{Start: c.StartSec, End: c.EndSec},
			Reason:      timeline.ReasonTangent,
			SourceWords: c.words,
			Score:       score,
		})
	}
	return spans, nil
}

func buildPrompt(chunksJSON []byte) string {
	return "You are editing a recorded talk. Identify the chunks that are off-topic tangents: " +
		"digressions, anecdotes or asides that a viewer could skip without losing the main thread. " +
		"Do not flag introductions, conclusions or chunks that carry the main argument. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema, " +
		"with score in (0,1] expressing how confident you are that the chunk is a tangent. " +
		"Return an empty list when nothing digresses." +
		"\n\nChunks JSON:\n" + string(chunksJSON)
}

// chunkTranscript groups words into roughly chunkTarget-long chunks that end
// at natural pauses.
func chunkTranscript(words []types.Word) []chunk {
	var out []chunk
	var cur *chunk
	var text []string
	flush := func() {
		if cur == nil {
			return
		}
		cur.Idx = len(out)
		cur.Text = strings.Join(text, " ")
		out = append(out, *cur)
		cur, text = nil, nil
	}

	for i, w := range words {
		t := strings.TrimSpace(w.Text)
		if t == "" || w.End <= w.Start {
			continue
		}
		if cur != nil {
			span := dur(w.End - cur.StartSec)
			pause := dur(w.Start - cur.EndSec)
			if (span > chunkTarget && pause >= chunkPause) || span > chunkMax {
				flush()
			}
		}
		if cur == nil {
			if len(out) >= maxChunks {
				break
			}
			cur = &chunk{StartSec: w.Start}
		}
		cur.EndSec = w.End
		cur.words = append(cur.words, i)
		text = append(text, t)
	}
	flush()
	return out
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

func dur(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
