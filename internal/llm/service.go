// Package llm is the typed client for AI text generation. Generation is
// the only billable operation in the layer, so every call passes the
// export/generation rate limiter and the cost governor before any network
// traffic, and reports its token usage back to the governor afterwards.
package llm

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"design-proxy/internal/costs"
	"design-proxy/pkg/apierror"
	"design-proxy/pkg/models"
	"design-proxy/pkg/ratelimit"
	"design-proxy/pkg/utils"
)

// DefaultBaseURL is the production OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is used when the caller does not pick one.
const DefaultModel = "gpt-4"

// UsageExporter forwards a tracked usage record to an external billing
// system.
type UsageExporter interface {
	ExportRecord(record models.UsageRecord) error
}

// Service issues spend-governed chat-completion calls. The credential is
// supplied per call; the service never holds a default key.
type Service struct {
	// BaseURL is overridable for tests.
	BaseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	governor   *costs.Governor
	exporter   UsageExporter
}

// SetExporter attaches an optional billing exporter. Export failures are
// logged, never propagated; billing is downstream of the audit log.
func (s *Service) SetExporter(exporter UsageExporter) {
	s.exporter = exporter
}

// NewService returns a generation service gated by the given limiter and
// governor.
func NewService(limiter *ratelimit.Limiter, governor *costs.Governor) *Service {
	return &Service{
		BaseURL:    DefaultBaseURL,
		httpClient: utils.NewHTTPClient(0),
		limiter:    limiter,
		governor:   governor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateText runs one chat-completion call: input validation, limiter
// admission, per-request and daily/monthly cost checks, then the request
// itself. Usage is tracked only after a successful response, so two
// interleaved calls may both pass the check; that soft overshoot is an
// accepted relaxation.
func (s *Service) GenerateText(ctx context.Context, token, prompt string, opts models.GenerationOptions) (*models.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apierror.New(apierror.KindInvalidInput, "prompt must not be empty")
	}
	if !utils.ValidateProviderToken(models.ProviderOpenAI, token) {
		return nil, apierror.New(apierror.KindInvalidInput, "malformed OpenAI API key")
	}

	if !s.limiter.Allow(utils.RateIdentity(token)) {
		return nil, apierror.New(apierror.KindRateLimited, "generation rate limit reached, try again shortly")
	}

	limits := s.governor.Limits()
	estimate := s.governor.EstimateCost(len(prompt))
	if limits.PerRequest == 0 || estimate > limits.PerRequest {
		return nil, apierror.Newf(apierror.KindCostLimit,
			"Per-request limit: estimated cost $%.4f exceeds $%.4f limit", estimate, limits.PerRequest)
	}
	if ok, reason := s.governor.CheckLimits(); !ok {
		return nil, apierror.New(apierror.KindCostLimit, reason)
	}

	request := chatRequest{
		Model:       opts.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if request.Model == "" {
		request.Model = DefaultModel
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := utils.CallAPIWithBody(ctx, s.httpClient, http.MethodPost,
		s.BaseURL+"/chat/completions", headers, request)
	if err != nil {
		return nil, apierror.Newf(apierror.KindNetwork, "generation API unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Newf(apierror.KindNetwork, "reading generation response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierror.FromResponse(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apierror.Newf(apierror.KindUpstream, "malformed generation response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, apierror.New(apierror.KindUpstream, "generation response contained no choices")
	}

	usage := models.TokenUsage{
		Prompt:     parsed.Usage.PromptTokens,
		Completion: parsed.Usage.CompletionTokens,
		Total:      parsed.Usage.TotalTokens,
	}
	record, err := s.governor.TrackUsage(usage.Prompt, usage.Completion)
	if err != nil {
		// The call already succeeded and cost money; surface the
		// bookkeeping failure without discarding the result.
		log.Printf("usage tracking failed after successful generation: %v", err)
	} else if s.exporter != nil {
		if err := s.exporter.ExportRecord(record); err != nil {
			log.Printf("billing export failed for record %s: %v", record.ID, err)
		}
	}

	return &models.GenerationResult{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage:   usage,
	}, nil
}
