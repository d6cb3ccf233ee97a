package component

import (
	"context"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"storyreel/internal/config"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultArkBaseURL  = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultArkModel    = "doubao-seed-1-6-flash-250615"
	defaultTemperature = 0.7
)

// NewChatModel 创建 eino ChatModel
// 支持 openai, azure, ark
func NewChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		return newOpenAIChatModel(ctx, cfg, false)
	case "azure":
		return newOpenAIChatModel(ctx, cfg, true)
	case "ark":
		return newArkChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// sampling 从配置取采样参数，未配置的温度使用 0.7
func sampling(cfg *config.AIConfig) (temp *float32, maxTokens *int, topP *float32) {
	t := float32(defaultTemperature)
	if cfg.Options.Temperature > 0 {
		t = float32(cfg.Options.Temperature)
	}
	temp = &t
	if cfg.Options.MaxTokens > 0 {
		mt := cfg.Options.MaxTokens
		maxTokens = &mt
	}
	if cfg.Options.TopP > 0 {
		p := float32(cfg.Options.TopP)
		topP = &p
	}
	return temp, maxTokens, topP
}

func newOpenAIChatModel(ctx context.Context, cfg *config.AIConfig, azure bool) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	temp, maxTokens, topP := sampling(cfg)

	modelCfg := &openai.ChatModelConfig{
		Model:       modelName,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ByAzure:     azure,
		Temperature: temp,
		MaxTokens:   maxTokens,
		TopP:        topP,
	}
	if azure && cfg.BaseURL == "" {
		return nil, fmt.Errorf("azure provider requires base_url")
	}
	return openai.NewChatModel(ctx, modelCfg)
}

func newArkChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultArkBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultArkModel
	}
	temp, maxTokens, topP := sampling(cfg)

	return arkext.NewChatModel(ctx, &arkext.ChatModelConfig{
		Model:       modelName,
		APIKey:      cfg.APIKey,
		BaseURL:     baseURL,
		Temperature: temp,
		MaxTokens:   maxTokens,
		TopP:        topP,
	})
}
