package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/types"
)

const requestTimeout = 10 * time.Minute

// Adapter transcribes through the OpenAI audio API with word timestamps.
type Adapter struct {
	client *openai.Client
	model  string
	lang   string
}

func New(apiKey, baseURL, model, language string) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	if model == "" {
		model = openai.Whisper1
	}
	return &Adapter{client: openai.NewClientWithConfig(cfg), model: model, lang: language}
}

// AudioExt keeps uploads under the API size limit.
func (a *Adapter) AudioExt() string { return ".mp3" }

func (a *Adapter) Transcribe(ctx context.Context, audioPath, _ string) (types.Transcript, error) {
	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    a.model,
		FilePath: audioPath,
		Language: a.lang,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return types.Transcript{}, classify(err)
	}
	return fromResponse(resp), nil
}

func fromResponse(resp openai.AudioResponse) types.Transcript {
	tr := types.Transcript{Language: resp.Language, Duration: resp.Duration}
	for _, s := range resp.Segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			tr.Segments = append(tr.Segments, types.Segment{Start: s.Start, End: s.End, Text: text})
		}
	}
	for _, w := range resp.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		// The API reports no per-word probability.
		tr.Words = append(tr.Words, types.Word{Text: text, Start: w.Start, End: w.End, Confidence: 1})
	}
	sort.SliceStable(tr.Words, func(i, j int) bool { return tr.Words[i].Start < tr.Words[j].Start })
	return tr
}

// classify marks rate limits, server errors and network failures as
// retryable; everything else (bad key, bad file) is permanent.
func classify(err error) error {
	e := apperr.Wrap(apperr.KindTranscription, "openai transcription", err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return e
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return e.AsRetryable()
	}
	if status != 0 {
		e.Msg = fmt.Sprintf("openai transcription: status %d", status)
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return e.AsRetryable()
	}
	return e
}
