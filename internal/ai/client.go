package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"storyreel/internal/ai/component"
	"storyreel/internal/config"
	"storyreel/internal/pkg/ark"
	"storyreel/internal/pkg/storytools"
)

// ProviderArkSDK 直接使用 volcengine-go-sdk，不经过 eino
const ProviderArkSDK = "ark-sdk"

// Client AI 能力层客户端
// 职责: 对话补全与结构化输出，屏蔽具体 Provider
type Client struct {
	provider string
	generate func(ctx context.Context, system, prompt string) (string, error)
}

// NewClient 按 provider 创建客户端
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ai.api_key", config.ErrMissingCredential)
	}

	if cfg.Provider == ProviderArkSDK {
		arkClient, err := ark.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark client: %w", err)
		}
		return &Client{provider: cfg.Provider, generate: arkGenerate(arkClient)}, nil
	}

	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewClientWithModel(cfg.Provider, chatModel), nil
}

// NewClientWithModel 使用已有的 eino ChatModel
func NewClientWithModel(provider string, chatModel model.BaseChatModel) *Client {
	return &Client{provider: provider, generate: einoGenerate(chatModel)}
}

func einoGenerate(chatModel model.BaseChatModel) func(ctx context.Context, system, prompt string) (string, error) {
	return func(ctx context.Context, system, prompt string) (string, error) {
		messages := make([]*schema.Message, 0, 2)
		if system != "" {
			messages = append(messages, schema.SystemMessage(system))
		}
		messages = append(messages, schema.UserMessage(prompt))

		resp, err := chatModel.Generate(ctx, messages)
		if err != nil {
			return "", err
		}
		if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
			log.Debug().
				Int("prompt_tokens", resp.ResponseMeta.Usage.PromptTokens).
				Int("completion_tokens", resp.ResponseMeta.Usage.CompletionTokens).
				Msg("LLM token 用量")
		}
		return resp.Content, nil
	}
}

func arkGenerate(c *ark.Client) func(ctx context.Context, system, prompt string) (string, error) {
	return func(ctx context.Context, system, prompt string) (string, error) {
		messages := make([]ark.Message, 0, 2)
		if system != "" {
			messages = append(messages, ark.Message{Role: "system", Content: system})
		}
		messages = append(messages, ark.Message{Role: "user", Content: prompt})

		content, usage, err := c.CreateChatCompletion(ctx, messages)
		if err != nil {
			return "", err
		}
		log.Debug().Int("total_tokens", usage.TotalTokens).Msg("LLM token 用量")
		return content, nil
	}
}

// Complete 同步补全
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.provider, err)
	}
	log.Debug().
		Str("provider", c.provider).
		Int("prompt_len", len(prompt)).
		Int("response_len", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("LLM 调用完成")
	log.Trace().Str("prompt", prompt).Str("response", text).Msg("LLM 输入输出")
	return text, nil
}

// CompleteJSON 补全并把结果解码为结构体
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string, out any) error {
	text, err := c.Complete(ctx, system, prompt)
	if err != nil {
		return err
	}
	if err := storytools.DecodeJSON(text, out); err != nil {
		return fmt.Errorf("%s structured output: %w", c.provider, err)
	}
	return nil
}
