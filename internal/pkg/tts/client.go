package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"storyreel/internal/config"
	"storyreel/internal/model/story"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "tts-1"
	DefaultVoice   = "fable"
)

// ErrEmptyAudio 返回的音频为空
var ErrEmptyAudio = errors.New("tts returned empty audio")

// voices 角色到音色的映射
var voices = map[story.Role]string{
	story.RoleNarrator: "fable",
	story.RoleChild:    "nova",
	story.RoleElder:    "onyx",
	story.RoleFae:      "shimmer",
	story.RoleHero:     "alloy",
	story.RoleVillain:  "echo",
	story.RoleSage:     "onyx",
	story.RoleSidekick: "nova",
}

// VoiceFor 按角色选择音色，未知角色使用旁白音色
func VoiceFor(role story.Role) string {
	if v, ok := voices[role]; ok {
		return v
	}
	return DefaultVoice
}

// Client TTS 客户端封装
// 调用 OpenAI 兼容的 /audio/speech 接口，返回 mp3 字节
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient 创建 TTS 客户端
func NewClient(cfg config.TTSConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TTS api key is required")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize 文本转语音
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is empty")
	}
	if voice == "" {
		voice = DefaultVoice
	}

	data, err := json.Marshal(speechRequest{Model: c.model, Input: text, Voice: voice, ResponseFormat: "mp3"})
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	apiURL := c.baseURL + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Debug().Str("voice", voice).Int("text_len", len(text)).Msg("调用 TTS")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("url", apiURL).
			Str("response_body", string(body)).
			Msg("TTS 请求失败")
		return nil, fmt.Errorf("API request failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}
