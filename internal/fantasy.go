package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
	"charm.land/fantasy/schema"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

type FantasyConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

var _ Provider = (*FantasyProvider)(nil)

// FantasyProvider adapts a fantasy language model to the Provider
// interface used by the analyzer.
type FantasyProvider struct {
	model fantasy.LanguageModel
}

func NewFantasyProvider(ctx context.Context, cfg FantasyConfig) (*FantasyProvider, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}

	return &FantasyProvider{model: model}, nil
}

func buildProvider(cfg FantasyConfig) (fantasy.Provider, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)

	case "groq":
		// Groq speaks the OpenAI wire format.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return openai.New(openai.WithAPIKey(cfg.APIKey), openai.WithBaseURL(baseURL))

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)

	case "openrouter":
		return openrouter.New(openrouter.WithAPIKey(cfg.APIKey))
	}

	return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
}

func (p *FantasyProvider) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := fantasy.NewAgent(p.model).Generate(ctx, fantasy.AgentCall{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return result.Response.Content.Text(), nil
}

// GenerateObject asks the model for a structured response matching the
// target's JSON schema and decodes it into target, which must be a pointer.
func (p *FantasyProvider) GenerateObject(ctx context.Context, prompt string, target any) error {
	targetVal := reflect.ValueOf(target)
	if targetVal.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer")
	}

	resp, err := p.model.GenerateObject(ctx, fantasy.ObjectCall{
		Prompt: fantasy.Prompt{fantasy.NewUserMessage(prompt)},
		Schema: schema.Generate(targetVal.Elem().Type()),
	})
	if err != nil {
		return fmt.Errorf("generate object: %w", err)
	}

	objVal := reflect.ValueOf(resp.Object)
	if objVal.IsValid() && objVal.Type().AssignableTo(targetVal.Elem().Type()) {
		targetVal.Elem().Set(objVal)
		return nil
	}

	// Providers may return the object as a generic map; round-trip it
	// through JSON into the typed target.
	data, err := json.Marshal(resp.Object)
	if err != nil {
		return fmt.Errorf("marshal object: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal object: %w", err)
	}
	return nil
}

func (p *FantasyProvider) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	ch := make(chan string, 64)

	go func() {
		defer close(ch)

		_, err := fantasy.NewAgent(p.model).Stream(ctx, fantasy.AgentStreamCall{
			Prompt: prompt,
			OnTextDelta: func(_, text string) error {
				if text != "" {
					ch <- text
				}
				return nil
			},
		})
		if err != nil {
			ch <- fmt.Sprintf("\n[error: %v]", err)
		}
	}()

	return ch, nil
}
