package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrand/maintchat/internal/agent"
	"github.com/kestrand/maintchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a maintenance assistant. Answer questions about equipment fault history " +
	"using the knowledge available to you. When the available records do not support a confident answer, " +
	"say so explicitly instead of guessing."

type Provider struct {
	client *openai.Client
	apiKey string
	model  string
}

func NewProvider(apiKey, model string) *Provider {
	if model == "" {
		model = openai.GPT4oMini
	}
	p := &Provider{apiKey: apiKey, model: model}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Converse(ctx context.Context, sessionID, input string) (*agent.Result, error) {
	if !p.IsConfigured() {
		return nil, domain.NewPermanentError("openai provider is not configured")
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		User:  sessionID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	var output string
	if len(resp.Choices) > 0 {
		output = resp.Choices[0].Message.Content
	}

	return &agent.Result{
		Text:    output,
		TraceID: resp.ID,
	}, nil
}

func (p *Provider) Probe(ctx context.Context) error {
	if !p.IsConfigured() {
		return domain.NewPermanentError("openai provider is not configured")
	}
	if _, err := p.client.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) *domain.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503:
			return domain.NewTransientError("the assistant is temporarily unavailable").Wrap(err)
		case 400, 401, 403, 404:
			return domain.NewPermanentError(fmt.Sprintf("the assistant rejected the request (status %d)", apiErr.HTTPStatusCode)).Wrap(err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewTimeoutError("the assistant did not respond in time").Wrap(err)
	}
	return domain.NewTransientError("failed to reach the assistant").Wrap(err)
}
