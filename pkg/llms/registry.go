package llms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kadirpekel/hfspace/pkg/config"
)

const ModelPassthrough = "passthrough"

// ErrUnknownModel is returned by NewFromModel for unsupported model strings.
var ErrUnknownModel = errors.New("unknown model")

// ModelAliases maps short names to Anthropic model identifiers.
var ModelAliases = map[string]string{
	"haiku":  "claude-3-5-haiku-latest",
	"sonnet": "claude-sonnet-4-0",
	"opus":   "claude-opus-4-1",
}

// ResolveModel returns the provider name and model ID for a model string:
// passthrough, an alias, anthropic.<id> or a bare claude-* ID.
func ResolveModel(model string) (provider, id string, err error) {
	model = strings.TrimSpace(model)
	switch {
	case model == ModelPassthrough:
		return ModelPassthrough, "", nil
	case ModelAliases[model] != "":
		return "anthropic", ModelAliases[model], nil
	case strings.HasPrefix(model, "anthropic."):
		id := strings.TrimPrefix(model, "anthropic.")
		if alias, ok := ModelAliases[id]; ok {
			id = alias
		}
		if id == "" {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
		}
		return "anthropic", id, nil
	case strings.HasPrefix(model, "claude-"):
		return "anthropic", model, nil
	default:
		return "", "", fmt.Errorf("%w: %q (supported: passthrough, haiku, sonnet, opus, anthropic.<id>)", ErrUnknownModel, model)
	}
}

// NewFromModel builds the provider for model, falling back to the configured
// default model when empty.
func NewFromModel(model string, cfg *config.Config) (Provider, error) {
	if model == "" && cfg != nil {
		model = cfg.DefaultModel
	}
	if model == "" {
		model = config.DefaultModel
	}

	provider, id, err := ResolveModel(model)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ModelPassthrough:
		return NewPassthroughProvider(), nil
	default:
		var anthropicCfg config.AnthropicConfig
		if cfg != nil {
			anthropicCfg = cfg.Anthropic
		}
		p, err := NewAnthropicProviderFromConfig(anthropicCfg, id)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM provider: %w", err)
		}
		return p, nil
	}
}
