package ark

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"storyreel/internal/config"
)

const (
	DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	DefaultModel   = "doubao-seed-1-6-flash-250615"
)

// Client Ark 客户端封装
// 用于调用火山引擎的 Ark API（豆包大模型）
// 使用官方 volcengine-go-sdk
type Client struct {
	client      *arkruntime.Client
	model       string
	maxTokens   int
	temperature float64
	topP        float64
}

// NewClient 创建 Ark 客户端（使用官方 SDK）
func NewClient(cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Ark API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	arkClient := arkruntime.NewClientWithApiKey(cfg.APIKey, arkruntime.WithBaseUrl(baseURL))

	return &Client{
		client:      arkClient,
		model:       modelName,
		maxTokens:   cfg.Options.MaxTokens,
		temperature: cfg.Options.Temperature,
		topP:        cfg.Options.TopP,
	}, nil
}

// Message 消息结构
type Message struct {
	Role    string `json:"role"`    // user, assistant, system
	Content string `json:"content"` // 消息内容
}

// Usage Token使用统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion 调用对话接口，返回第一个候选的内容
func (c *Client) CreateChatCompletion(ctx context.Context, messages []Message) (string, *Usage, error) {
	input := &model.ChatCompletionRequest{
		Model:    c.model,
		Messages: convertMessages(messages),
	}
	if c.maxTokens > 0 {
		input.MaxTokens = c.maxTokens
	}
	if c.temperature > 0 {
		input.Temperature = float32(c.temperature)
	}
	if c.topP > 0 {
		input.TopP = float32(c.topP)
	}

	output, err := c.client.CreateChatCompletion(ctx, input)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Msg("failed to call Ark ChatCompletion API")
		return "", nil, fmt.Errorf("Ark API call failed: %w", err)
	}
	if len(output.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in response")
	}

	var content string
	if msg := output.Choices[0].Message; msg.Content != nil && msg.Content.StringValue != nil {
		content = *msg.Content.StringValue
	}
	usage := &Usage{
		PromptTokens:     output.Usage.PromptTokens,
		CompletionTokens: output.Usage.CompletionTokens,
		TotalTokens:      output.Usage.TotalTokens,
	}
	return content, usage, nil
}

// convertMessages 转换消息格式
func convertMessages(messages []Message) []*model.ChatCompletionMessage {
	result := make([]*model.ChatCompletionMessage, len(messages))
	for i := range messages {
		content := &model.ChatCompletionMessageContent{
			StringValue: &messages[i].Content,
		}
		result[i] = &model.ChatCompletionMessage{
			Role:    messages[i].Role,
			Content: content,
		}
	}
	return result
}
