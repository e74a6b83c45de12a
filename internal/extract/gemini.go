package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/medx/lab-extractor/internal/config"
	"github.com/medx/lab-extractor/internal/ingest"
)

const extractionPrompt = `Analyze this document.
1. First, determine if this is a valid quantitative medical lab report (blood test, urine test, etc.).
2. If it is NOT a medical report, or if it is a prescription/bill/scan image without lab results, return an empty object: { "results": [] }.
3. If it IS a valid report, extract all test results into the "results" array.

For each test result, extract:
- heading (section name like HEMATOLOGY, LIPID PROFILE). If missing, use "N/A".
- test_name (parameter name). If missing, use "N/A".
- result (value). If missing, use "N/A".
- unit (measurement unit). If missing, use "N/A".`

const ignoreIntervalsClause = `

Ignore reference intervals.`

const extractIntervalsClause = `
- biological_reference_interval (the reference range printed for the test). If missing, use "N/A".`

const relevancePrompt = `Is this document a quantitative medical lab report (blood test, urine test, or similar)? Answer with exactly YES or NO.`

// Gemini calls the Gemini generateContent REST API with an inline base64
// document and the declared response schema.
type Gemini struct {
	client *resty.Client
	schema *Schema
	logger *slog.Logger
}

// NewGemini creates the Gemini capability adapter.
func NewGemini(cfg *config.GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	schema, err := SchemaVersion(cfg.SchemaVersion)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeoutDuration()).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey())

	return &Gemini{
		client: client,
		schema: schema,
		logger: logger.With("system", "gemini"),
	}, nil
}

// Schema returns the output contract this adapter requests.
func (g *Gemini) Schema() *Schema {
	return g.schema
}

type generateRequest struct {
	Contents         []requestContent  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type requestContent struct {
	Role  string        `json:"role"`
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

// Extract implements Capability.
func (g *Gemini) Extract(ctx context.Context, model string, doc ingest.Payload) (*Result, error) {
	prompt := extractionPrompt
	if g.schema.IncludesReferenceInterval() {
		prompt += extractIntervalsClause
	} else {
		prompt += ignoreIntervalsClause
	}

	body := generateRequest{
		Contents: []requestContent{{
			Role: "user",
			Parts: []requestPart{
				{Text: prompt},
				{InlineData: &inlineData{MIMEType: doc.ContentType, Data: doc.Data}},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   g.schema.ResponseSchema(),
		},
	}

	raw, err := g.generate(ctx, model, body)
	if err != nil {
		return nil, err
	}

	text, err := CandidateText(raw)
	if err != nil {
		return nil, err
	}

	result, err := ParseResult(text, g.schema)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("extraction response parsed", "model", model, "line_items", len(result.Results))
	return result, nil
}

// CheckRelevance implements Capability. An answer that is neither YES nor
// NO reports true: the policy is permissive, extraction itself carries the
// stronger validity signal.
func (g *Gemini) CheckRelevance(ctx context.Context, model string, doc ingest.Payload) (bool, error) {
	body := generateRequest{
		Contents: []requestContent{{
			Role: "user",
			Parts: []requestPart{
				{Text: relevancePrompt},
				{InlineData: &inlineData{MIMEType: doc.ContentType, Data: doc.Data}},
			},
		}},
	}

	raw, err := g.generate(ctx, model, body)
	if err != nil {
		return false, err
	}

	text, err := CandidateText(raw)
	if err != nil {
		return false, err
	}

	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "NO":
		return false, nil
	case "YES":
		return true, nil
	default:
		g.logger.Warn("ambiguous relevance answer, treating as relevant", "model", model, "answer", text)
		return true, nil
	}
}

func (g *Gemini) generate(ctx context.Context, model string, body generateRequest) ([]byte, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/models/%s:generateContent", model))
	if err != nil {
		// Connection-level failures are indistinguishable from the
		// service being down, so they retry.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.IsSuccess() {
		return resp.Body(), nil
	}

	status := resp.StatusCode()
	detail := apiErrorMessage(resp.Body())
	g.logger.Warn("gemini request failed", "model", model, "status", status, "detail", detail)

	switch status {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, detail)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, detail)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, detail)
	default:
		return nil, fmt.Errorf("gemini status %d: %s", status, detail)
	}
}

func apiErrorMessage(body []byte) string {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(body))
}
