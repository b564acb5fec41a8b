// Package extract calls the external extraction stage, which turns an
// accessible document URL into plain text.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/resumeiq/pipeline/internal/common"
)

// Extractor is the extraction stage contract.
type Extractor interface {
	Extract(ctx context.Context, documentURL string) (string, error)
}

// Client is the HTTP extraction client. Failures are reported as
// common.ErrExtraction so the worker retries them up to the bound.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	log      *slog.Logger
}

type extractRequest struct {
	DocumentURL string `json:"document_url"`
}

type extractResponse struct {
	Text string `json:"text"`
}

// NewClient builds an extraction client for the given endpoint.
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
		log:      log,
	}
}

func (c *Client) Extract(ctx context.Context, documentURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, status, err := common.SendJSON(ctx, c.http, c.endpoint, extractRequest{DocumentURL: documentURL}, nil, c.log)
	if err != nil {
		c.log.Error("extraction call failed", "status", status, "err", err)
		return "", common.NewAppError("EXTRACTION_ERROR", "extraction stage call failed", common.ErrExtraction)
	}

	var resp extractResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Error("extraction response undecodable", "err", err)
		return "", common.NewAppError("EXTRACTION_ERROR", "malformed extraction response", common.ErrExtraction)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", common.NewAppError("EXTRACTION_ERROR", "document produced no text", common.ErrExtraction)
	}
	return resp.Text, nil
}
