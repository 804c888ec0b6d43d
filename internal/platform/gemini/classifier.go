package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/classifier-api/internal/classify"
	"github.com/phrazzld/classifier-api/internal/config"
	"github.com/phrazzld/classifier-api/internal/domain"
	"github.com/phrazzld/classifier-api/internal/tagcache"
)

// GeminiClassifier implements the classify.Classifier interface using
// Google's Gemini API to propose tags for extracted document text.
type GeminiClassifier struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// promptTemplate is the parsed template for creating prompts
	promptTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// promptData is the input to the prompt template.
type promptData struct {
	Document string
	TagsJSON string
}

// promptTag is the trimmed tag shape presented to the model. Internal
// IDs never reach the prompt.
type promptTag struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	ShortForm   string   `json:"short_form"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
}

// NewGeminiClassifier creates a new GeminiClassifier with the provided
// dependencies. It loads and parses the prompt template and initializes
// the Gemini API client.
func NewGeminiClassifier(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiClassifier, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", classify.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", classify.ErrInvalidConfig)
	}
	if cfg.PromptTemplatePath == "" {
		return nil, fmt.Errorf("%w: prompt template path cannot be empty", classify.ErrInvalidConfig)
	}

	templateContent, err := os.ReadFile(cfg.PromptTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
			classify.ErrInvalidConfig, cfg.PromptTemplatePath, err)
	}

	promptTemplate, err := template.New("classification").Parse(string(templateContent))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			classify.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			classify.ErrInvalidConfig, err)
	}

	return &GeminiClassifier{
		logger:         logger,
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

var _ classify.Classifier = (*GeminiClassifier)(nil)

// Classify sends the document text and the snapshot's tags to the model
// and returns the raw candidates it proposed, in model order.
func (g *GeminiClassifier) Classify(
	ctx context.Context,
	text string,
	snap *tagcache.Snapshot,
) (domain.RawCandidates, error) {
	if text == "" {
		return nil, classify.ErrEmptyDocument
	}
	if snap == nil || snap.Count() == 0 {
		return nil, fmt.Errorf("%w: no tag snapshot available", classify.ErrInvalidConfig)
	}

	// Over-long documents are truncated rather than rejected; the
	// leading content carries the classification signal.
	if g.config.MaxDocumentChars > 0 && len(text) > g.config.MaxDocumentChars {
		g.logger.InfoContext(ctx, "truncating document for prompt",
			"original_chars", len(text),
			"max_chars", g.config.MaxDocumentChars)
		text = text[:g.config.MaxDocumentChars]
	}

	prompt, err := g.createPrompt(ctx, text, snap)
	if err != nil {
		return nil, err
	}

	raw, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	candidates, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "classification call complete",
		"candidate_count", len(candidates))
	return candidates, nil
}

// createPrompt renders the prompt template with the document text and
// the snapshot's tags serialized as JSON.
func (g *GeminiClassifier) createPrompt(ctx context.Context, text string, snap *tagcache.Snapshot) (string, error) {
	tags := snap.Tags()
	promptTags := make([]promptTag, 0, len(tags))
	for _, t := range tags {
		promptTags = append(promptTags, promptTag{
			Name:        t.Name,
			Aliases:     t.Aliases,
			ShortForm:   t.ShortForm,
			Type:        string(t.Type),
			Description: t.Description,
		})
	}

	tagsJSON, err := json.Marshal(promptTags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags for prompt: %w", err)
	}

	var buf bytes.Buffer
	if err := g.promptTemplate.Execute(&buf, promptData{
		Document: text,
		TagsJSON: string(tagsJSON),
	}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	g.logger.DebugContext(ctx, "prompt generated",
		"prompt_length", buf.Len(),
		"tag_count", len(promptTags))
	return buf.String(), nil
}

// callWithRetry makes a call to the Gemini API with exponential backoff
// retry logic. Transient failures are retried up to config.MaxRetries
// times; permanent errors (safety blocks, unparseable output) are
// returned immediately.
func (g *GeminiClassifier) callWithRetry(ctx context.Context, prompt string) ([]byte, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		g.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 3)
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		g.logger.WarnContext(ctx, "invalid retry delay value, using default", "base_delay_seconds", 2)
		baseDelaySeconds = 2
	}

	temperature := float32(g.config.Temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		g.logger.InfoContext(ctx, "making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		raw, err := g.callOnce(ctx, prompt, genConfig)
		if err == nil {
			g.logger.InfoContext(ctx, "Gemini API call successful", "attempt", attemptNum)
			return raw, nil
		}

		if errors.Is(err, classify.ErrContentBlocked) || errors.Is(err, classify.ErrInvalidResponse) {
			g.logger.WarnContext(ctx, "permanent error from Gemini API, not retrying",
				"attempt", attemptNum,
				"error", err)
			return nil, err
		}

		g.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				classify.ErrTransient, maxRetries, err)
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		g.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", classify.ErrTransient, ctx.Err())
		}
	}
}

// callOnce performs a single API call and maps its failure modes onto
// the classify error taxonomy.
func (g *GeminiClassifier) callOnce(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) ([]byte, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		// API-level failures are assumed transient; permanent conditions
		// surface through the response inspection below.
		return nil, fmt.Errorf("%w: %v", classify.ErrTransient, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", classify.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason safety", classify.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", classify.ErrInvalidResponse)
	}

	return []byte(text), nil
}
