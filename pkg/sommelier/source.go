package sommelier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cellardesk/cellar-cli/internal/model"
	"github.com/cellardesk/cellar-cli/internal/resilience"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 512
)

const systemPrompt = `You are a wine structure analyst. Given a wine's name,
vintage, grapes and region, respond with ONLY a JSON object, no prose:
{"body": 0-5, "tannin": 0-5, "acidity": 0-5, "oak": 0-5, "sweetness": 0-5}
Use integer values. If you cannot assess the wine, still answer with your
best estimate.`

// profilePayload is the JSON shape the model is instructed to return.
type profilePayload struct {
	Body      int `json:"body"`
	Tannin    int `json:"tannin"`
	Acidity   int `json:"acidity"`
	Oak       int `json:"oak"`
	Sweetness int `json:"sweetness"`
}

// Source asks the Anthropic API for a structural profile. It satisfies the
// backfill orchestrator's profile source; errors are soft, callers fall back
// to the heuristic estimator.
type Source struct {
	client  Client
	model   string
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewSource builds a Source with a per-second rate limit across all callers,
// so a backfill worker pool cannot exceed the API quota.
func NewSource(client Client, modelName string, requestsPerSec float64) *Source {
	if modelName == "" {
		modelName = defaultModel
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 2
	}
	return &Source{
		client:  client,
		model:   modelName,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
}

// GetProfile fetches one profile. The returned profile always carries the AI
// source and medium confidence; the readiness calculator trusts it more than
// a heuristic estimate but never as much as a tasted profile.
func (s *Source) GetProfile(ctx context.Context, wine model.WineRecord) (*model.StructuralProfile, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sommelier: rate limit wait")
	}

	var resp *MessageResponse
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = s.client.CreateMessage(ctx, MessageRequest{
			Model:       s.model,
			MaxTokens:   defaultMaxTokens,
			System:      systemPrompt,
			UserMessage: describeWine(wine),
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	payload, err := parseProfile(resp.Text)
	if err != nil {
		zap.L().Debug("sommelier: unparseable response",
			zap.Int64("wine_id", wine.ID),
			zap.String("text", resp.Text),
		)
		return nil, err
	}

	p := model.NewStructuralProfile(
		payload.Body, payload.Tannin, payload.Acidity, payload.Oak, payload.Sweetness,
		model.ConfidenceMed, model.ProfileSourceAI,
	)
	return &p, nil
}

func describeWine(wine model.WineRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Wine: %s\nVintage: %d\nColor: %s\n", wine.Name, wine.VintageYear, wine.Color)
	if len(wine.Grapes) > 0 {
		fmt.Fprintf(&b, "Grapes: %s\n", strings.Join(wine.Grapes, ", "))
	}
	if wine.Region != "" {
		fmt.Fprintf(&b, "Region: %s\n", wine.Region)
	}
	if wine.Appellation != nil && *wine.Appellation != "" {
		fmt.Fprintf(&b, "Appellation: %s\n", *wine.Appellation)
	}
	return b.String()
}

// parseProfile extracts the first JSON object from the response text. Models
// occasionally wrap the object in code fences despite instructions.
func parseProfile(text string) (*profilePayload, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("sommelier: no JSON object in response")
	}
	var p profilePayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return nil, eris.Wrap(err, "sommelier: decode profile")
	}
	return &p, nil
}
