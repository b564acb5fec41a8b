// Package analyze calls the external analysis stage, which turns extracted
// resume text into a structured result (score, suggestions, optional
// candidate profile).
package analyze

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
)

// Analyzer is the analysis stage contract.
type Analyzer interface {
	Analyze(ctx context.Context, content, ownerID string) (*entity.AnalysisResult, error)
}

// Client is the HTTP analysis client. Every response is validated against
// the analysis schema before it is accepted; shape violations surface as
// common.ErrAnalysis, never as silently-persisted garbage.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	schema   map[string]any
	log      *slog.Logger
}

type analyzeRequest struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

type analyzeResponse struct {
	Score            float64                  `json:"score"`
	OptimizedContent string                   `json:"optimized_content"`
	Suggestions      []entity.Suggestion      `json:"suggestions"`
	Profile          *entity.CandidateProfile `json:"profile"`
}

// NewClient builds an analysis client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		timeout:  timeout,
		schema:   BuildAnalysisJSONSchema(),
		log:      log,
	}
}

func (c *Client) Analyze(ctx context.Context, content, ownerID string) (*entity.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, status, err := common.SendJSON(ctx, c.http, c.endpoint, analyzeRequest{Content: content, UserID: ownerID}, nil, c.log)
	if err != nil {
		c.log.Error("analysis call failed", "status", status, "err", err)
		return nil, common.NewAppError("ANALYSIS_ERROR", "analysis stage call failed", common.ErrAnalysis)
	}

	doc := stripCodeFences(raw)
	if err := ValidateJSONAgainstSchema(c.schema, doc); err != nil {
		c.log.Error("analysis response rejected", "err", err)
		return nil, common.NewAppError("ANALYSIS_ERROR", "analysis response failed validation", common.ErrAnalysis)
	}

	var resp analyzeResponse
	if err := json.Unmarshal(doc, &resp); err != nil {
		return nil, common.NewAppError("ANALYSIS_ERROR", "malformed analysis response", common.ErrAnalysis)
	}

	res := &entity.AnalysisResult{
		Score:            int(math.Round(resp.Score)),
		OptimizedContent: resp.OptimizedContent,
		Suggestions:      resp.Suggestions,
		Profile:          resp.Profile,
	}
	for i := range res.Suggestions {
		canon, known := constants.Canonicalize(res.Suggestions[i].Category)
		if !known {
			c.log.Warn("unknown suggestion category", "label", res.Suggestions[i].Category)
		}
		res.Suggestions[i].Category = string(canon)
	}
	return res, nil
}

// stripCodeFences tolerates a JSON body wrapped in markdown code fences,
// which the upstream agent occasionally produces.
func stripCodeFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if start := strings.Index(s, "```json"); start >= 0 {
		s = s[start+len("```json"):]
	} else if start := strings.Index(s, "```"); start >= 0 {
		s = s[start+len("```"):]
	} else {
		return []byte(s)
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return []byte(strings.TrimSpace(s))
}
