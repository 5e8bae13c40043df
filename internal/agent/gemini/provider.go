package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/kestrand/maintchat/internal/agent"
	"github.com/kestrand/maintchat/internal/domain"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const systemInstruction = "You are a maintenance assistant. Answer questions about equipment fault history " +
	"using the knowledge available to you. When the available records do not support a confident answer, " +
	"say so explicitly instead of guessing."

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(apiKey, model string) *Provider {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Provider{apiKey: apiKey, model: model}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Converse(ctx context.Context, sessionID, input string) (*agent.Result, error) {
	if !p.IsConfigured() {
		return nil, domain.NewPermanentError("gemini provider is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, domain.NewPermanentError("failed to create gemini client").Wrap(err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(input))
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &agent.Result{TraceID: sessionID}, nil
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}

	return &agent.Result{
		Text:    output,
		TraceID: sessionID,
	}, nil
}

func (p *Provider) Probe(ctx context.Context) error {
	if !p.IsConfigured() {
		return domain.NewPermanentError("gemini provider is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return domain.NewPermanentError("failed to create gemini client").Wrap(err)
	}
	defer client.Close()

	if _, err := client.GenerativeModel(p.model).CountTokens(ctx, genai.Text("ping")); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Google API errors into the domain taxonomy: throttling
// and upstream unavailability retry, everything else does not.
func classify(err error) *domain.Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503:
			return domain.NewTransientError("the assistant is temporarily unavailable").Wrap(err)
		case 400, 401, 403, 404:
			return domain.NewPermanentError(fmt.Sprintf("the assistant rejected the request (status %d)", gerr.Code)).Wrap(err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewTimeoutError("the assistant did not respond in time").Wrap(err)
	}
	return domain.NewTransientError("failed to reach the assistant").Wrap(err)
}
