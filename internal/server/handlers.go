package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"raicompanion/internal/analysis"
	"raicompanion/internal/domain"
	"raicompanion/internal/integrations/llm"
)

type handlers struct {
	cfg RouterConfig
}

type analyzeRequest struct {
	Text  string `json:"text" jsonschema:"required,minLength=1" jsonschema_description:"Claim, narrative or question to analyze"`
	Model string `json:"model,omitempty" jsonschema_description:"Model alias; the server default when empty"`
	Mode  string `json:"mode,omitempty" jsonschema:"enum=quick,enum=guided,enum=expert"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func (h *handlers) analyze(c *gin.Context) {
	if h.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes)
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	res, err := h.cfg.Analyzer.Analyze(c.Request.Context(), analysis.Request{
		Text:   req.Text,
		Model:  req.Model,
		Mode:   req.Mode,
		Source: "http",
	})
	if err != nil {
		status, body := errorStatus(err)
		c.JSON(status, body)
		return
	}
	c.Header("X-Request-Id", res.RequestID)
	c.JSON(http.StatusOK, res)
}

// errorStatus maps analysis failures onto HTTP status codes.
func errorStatus(err error) (int, errorResponse) {
	var verr *analysis.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field}
	}
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		body := errorResponse{Error: lerr.Error(), Kind: string(lerr.Kind), Provider: lerr.Provider}
		switch lerr.Kind {
		case llm.KindRateLimited:
			return http.StatusTooManyRequests, body
		case llm.KindCanceled:
			return 499, body
		}
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, errorResponse{Error: err.Error()}
}

func (h *handlers) health(c *gin.Context) {
	lib := h.cfg.Analyzer.Library()
	models := h.cfg.Analyzer.AvailableModels()
	status := "healthy"
	if len(models) == 0 {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"library_version":  lib.Version(),
		"modules":          lib.ModuleCount(),
		"premises":         lib.PremiseCount(),
		"available_models": nonNil(models),
	})
}

func (h *handlers) config(c *gin.Context) {
	opts := h.cfg.Analyzer.Options()
	c.JSON(http.StatusOK, gin.H{
		"models":           nonNil(h.cfg.Analyzer.AvailableModels()),
		"modes":            domain.Modes,
		"default_model":    opts.DefaultModel,
		"default_mode":     opts.DefaultMode,
		"max_input_length": opts.MaxInputLength,
		"max_modules":      opts.MaxModules,
	})
}

type statsResponse struct {
	WindowDays     int            `json:"window_days"`
	TotalAnalyses  int            `json:"total_analyses"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	Fallbacks      int            `json:"selection_fallbacks"`
	AvgLatencyMS   float64        `json:"avg_latency_ms"`
	TotalTokens    int64          `json:"total_tokens"`
	ByModel        map[string]int `json:"by_model"`
	ByMode         map[string]int `json:"by_mode"`
	ByCategory     map[string]int `json:"by_category"`
	MostUsedModule string         `json:"most_used_module,omitempty"`
	Client         *llm.Stats     `json:"client,omitempty"`
}

func (h *handlers) stats(c *gin.Context) {
	s, err := h.cfg.Analyzer.Stats(statsWindow)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "stats unavailable: " + err.Error()})
		return
	}
	resp := statsResponse{
		WindowDays:     int(statsWindow.Hours() / 24),
		TotalAnalyses:  s.TotalAnalyses,
		Succeeded:      s.Succeeded,
		Failed:         s.Failed,
		Fallbacks:      s.Fallbacks,
		AvgLatencyMS:   s.AvgLatencyMS,
		TotalTokens:    s.TotalTokens,
		ByModel:        s.ByModel,
		ByMode:         s.ByMode,
		ByCategory:     s.ByCategory,
		MostUsedModule: s.MostUsedModule,
	}
	if h.cfg.LLM != nil {
		cs := h.cfg.LLM.Stats()
		resp.Client = &cs
	}
	c.JSON(http.StatusOK, resp)
}

type moduleView struct {
	ID             string       `json:"id"`
	Level          domain.Level `json:"level"`
	Name           string       `json:"name"`
	Purpose        string       `json:"purpose"`
	CoreQuestions  []string     `json:"core_questions"`
	AnchorPremises []string     `json:"anchor_premises"`
}

type premiseView struct {
	ID        string `json:"id"`
	Dimension string `json:"dimension"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

func (h *handlers) library(c *gin.Context) {
	lib := h.cfg.Analyzer.Library()

	modules := make([]moduleView, 0, lib.ModuleCount())
	for _, m := range lib.Modules() {
		modules = append(modules, moduleView{
			ID:             m.ID,
			Level:          m.Level,
			Name:           m.Name,
			Purpose:        m.Purpose,
			CoreQuestions:  m.CoreQuestions,
			AnchorPremises: m.AnchoredPremiseIDs,
		})
	}
	premises := make([]premiseView, 0, lib.PremiseCount())
	for _, p := range lib.Premises() {
		premises = append(premises, premiseView{ID: p.ID, Dimension: p.Dimension, Title: p.Title, Content: p.Content})
	}

	c.JSON(http.StatusOK, gin.H{
		"version":  lib.Version(),
		"modules":  modules,
		"premises": premises,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
