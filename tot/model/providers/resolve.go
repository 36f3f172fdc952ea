// Package providers resolves "provider/model" specs to chat models.
package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/model/anthropic"
	"github.com/dshills/branchchat/tot/model/google"
	"github.com/dshills/branchchat/tot/model/openai"
)

// DeepSeekBaseURL is the OpenAI-compatible endpoint used for the deepseek provider.
const DeepSeekBaseURL = "https://api.deepseek.com"

// Provider names accepted in a model spec.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Google    = "google"
	DeepSeek  = "deepseek"
)

var apiKeyEnv = map[string]string{
	OpenAI:    "OPENAI_API_KEY",
	Anthropic: "ANTHROPIC_API_KEY",
	Google:    "GOOGLE_API_KEY",
	DeepSeek:  "DEEPSEEK_API_KEY",
}

// Resolver builds chat models from specs like "openai/gpt-4o-mini" or
// "deepseek/deepseek-reasoner". A spec without a model part uses the
// provider default.
type Resolver struct {
	// LookupEnv reads credentials. Nil means os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Resolve returns the chat model named by spec.
func (r Resolver) Resolve(spec string) (model.ChatModel, error) {
	provider, modelName := ParseSpec(spec)

	envKey, ok := apiKeyEnv[provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q in %q", provider, spec)
	}

	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	apiKey, ok := lookup(envKey)
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("%s is not set for provider %s", envKey, provider)
	}

	switch provider {
	case OpenAI:
		return openai.NewChatModel(apiKey, modelName), nil
	case Anthropic:
		return anthropic.NewChatModel(apiKey, modelName), nil
	case Google:
		return google.NewChatModel(apiKey, modelName), nil
	default:
		if modelName == "" {
			modelName = "deepseek-chat"
		}
		return openai.NewCompatibleChatModel(apiKey, DeepSeekBaseURL, modelName), nil
	}
}

// Resolve resolves spec using process environment credentials.
func Resolve(spec string) (model.ChatModel, error) {
	return Resolver{}.Resolve(spec)
}

// ParseSpec splits "provider/model" into its lowercase provider and model
// name. A bare name is treated as a provider.
func ParseSpec(spec string) (provider, modelName string) {
	spec = strings.TrimSpace(spec)
	provider, modelName, _ = strings.Cut(spec, "/")
	return strings.ToLower(provider), modelName
}
