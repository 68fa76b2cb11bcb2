// Package api exposes the planning core over HTTP: plan a transcript, remap
// timestamps through a plan, caption an edited timeline, and list run
// history.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forPelevin/autocut/internal/apperr"
	"github.com/forPelevin/autocut/internal/config"
	"github.com/forPelevin/autocut/internal/domain/remap"
	"github.com/forPelevin/autocut/internal/domain/subtitles"
	"github.com/forPelevin/autocut/internal/domain/timeline"
	"github.com/forPelevin/autocut/internal/storage"
	"github.com/forPelevin/autocut/internal/types"
	"github.com/forPelevin/autocut/internal/usecase"
)

type Server struct {
	cfg     config.Config
	history *storage.Store
	log     *zap.Logger
	uc      usecase.Usecase
}

// New returns a server that plans with cfg's defaults. history may be nil.
func New(cfg config.Config, history *storage.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, history: history, log: log, uc: usecase.New(usecase.Deps{Log: log})}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := r.Group("/v1")
	{
		v1.POST("/plan", s.plan)
		v1.POST("/remap", s.remap)
		v1.POST("/captions", s.captions)
		v1.GET("/jobs", s.listJobs)
		v1.GET("/jobs/:id", s.getJob)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

type errorBody struct {
	Error string              `json:"error"`
	Kind  string              `json:"kind,omitempty"`
	Range *timeline.TimeRange `json:"range,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error()})
}

// fail maps a stage error to a status: an empty result is 422, other
// planning errors are the caller's fault, anything else is ours.
func fail(c *gin.Context, err error) {
	body := errorBody{Error: err.Error()}
	if k := apperr.KindOf(err); k != apperr.KindUnknown {
		body.Kind = k.String()
	}
	if r, ok := apperr.RangeOf(err); ok {
		body.Range = &r
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrEmptyResult):
		status = http.StatusUnprocessableEntity
	case apperr.Is(err, apperr.KindPlanning):
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, body)
}

type planRequest struct {
	Transcript types.Transcript `json:"transcript"`
	// Spans skips classification when present.
	Spans    []timeline.Span `json:"spans"`
	Tangents []timeline.Span `json:"tangents"`
	// Policy defaults to the server configuration.
	Policy *timeline.Policy `json:"policy"`
	// Duration is the media length; Media.Duration is used when zero.
	Duration float64          `json:"duration"`
	Media    *types.MediaInfo `json:"media"`
}

type planResponse struct {
	Plan     timeline.EditPlan `json:"plan"`
	Spans    []timeline.Span   `json:"spans"`
	Warnings []string          `json:"warnings"`
}

func (s *Server) plan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var policy timeline.Policy
	if req.Policy != nil {
		policy = *req.Policy
	} else {
		p, err := s.cfg.ToPolicy()
		if err != nil {
			fail(c, err)
			return
		}
		policy = p
	}
	media := types.MediaInfo{}
	if req.Media != nil {
		media = *req.Media
	}
	if req.Duration > 0 {
		media.Duration = req.Duration
	}
	for i, sp := range append(append([]timeline.Span(nil), req.Spans...), req.Tangents...) {
		if !sp.Reason.Valid() || !sp.Range.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid span " + strconv.Itoa(i)})
			return
		}
	}

	res, err := s.uc.Plan(c.Request.Context(), usecase.PlanInput{
		Transcript: req.Transcript,
		Media:      media,
		Policy:     policy,
		Classifier: s.cfg.ClassifierOptions(),
		Spans:      req.Spans,
		Tangents:   req.Tangents,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if res.Spans == nil {
		res.Spans = []timeline.Span{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	c.JSON(http.StatusOK, planResponse{Plan: res.Plan, Spans: res.Spans, Warnings: res.Warnings})
}

type remapRequest struct {
	Plan       timeline.EditPlan `json:"plan"`
	Timestamps []float64         `json:"timestamps"`
	// Inverse maps edited timestamps back to the original timeline.
	Inverse bool `json:"inverse"`
}

type remapResponse struct {
	// Timestamps holds null for a time that was cut.
	Timestamps     []*float64 `json:"timestamps"`
	EditedDuration float64    `json:"edited_duration"`
}

func (s *Server) remap(c *gin.Context) {
	var req remapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Plan.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	m := remap.New(req.Plan)
	out := make([]*float64, len(req.Timestamps))
	for i, t := range req.Timestamps {
		var v float64
		var ok bool
		if req.Inverse {
			v, ok = m.Inverse(t)
		} else {
			v, ok = m.Remap(t)
		}
		if ok {
			out[i] = &v
		}
	}
	c.JSON(http.StatusOK, remapResponse{Timestamps: out, EditedDuration: m.EditedDuration()})
}

type captionsRequest struct {
	Plan    timeline.EditPlan  `json:"plan"`
	Words   []types.Word       `json:"words"`
	Options *subtitles.Options `json:"options"`
}

// captions answers SRT text, or the cue list with ?format=json.
func (s *Server) captions(c *gin.Context) {
	var req captionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Plan.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	opts := s.cfg.CueOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	cues := subtitles.BuildCues(req.Words, remap.New(req.Plan), opts)

	if c.Query("format") == "json" {
		if cues == nil {
			cues = []subtitles.Cue{}
		}
		c.JSON(http.StatusOK, gin.H{"cues": cues})
		return
	}
	c.Header("Content-Type", "application/x-subrip; charset=utf-8")
	if err := subtitles.WriteSRT(c.Writer, cues); err != nil {
		s.log.Warn("write srt response", zap.Error(err))
	}
}

func (s *Server) listJobs(c *gin.Context) {
	if s.history == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: "history is disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := s.history.ListJobs(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	if s.history == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{Error: "history is disabled"})
		return
	}
	job, err := s.history.GetJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
