package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredential 缺少必要的凭证（致命错误，整次运行终止）
var ErrMissingCredential = errors.New("missing credential")

// Config 应用配置根结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	AI         AIConfig         `mapstructure:"ai"`
	Leonardo   LeonardoConfig   `mapstructure:"leonardo"`
	TTS        TTSConfig        `mapstructure:"tts"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Story      StoryConfig      `mapstructure:"story"`
	Log        LogConfig        `mapstructure:"log"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig 对话模型配置
type AIConfig struct {
	Provider string          `mapstructure:"provider"` // openai, azure, ark, ark-sdk
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// LeonardoConfig Leonardo 图片/动图生成配置
type LeonardoConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ModelID        string        `mapstructure:"model_id"`
	Width          int           `mapstructure:"width"`
	Height         int           `mapstructure:"height"`
	GuidanceScale  int           `mapstructure:"guidance_scale"`
	MotionStrength int           `mapstructure:"motion_strength"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxWait        time.Duration `mapstructure:"max_wait"`
	RateInterval   time.Duration `mapstructure:"rate_interval"` // 提交任务的最小间隔，0 表示不限速
}

// TTSConfig 语音合成配置（OpenAI 兼容接口）
type TTSConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FFmpegConfig FFmpeg 可执行文件配置
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

// StoryConfig 故事流水线配置
type StoryConfig struct {
	KeyframeCount   int    `mapstructure:"keyframe_count"`
	SceneMode       string `mapstructure:"scene_mode"` // single, dialog
	ImageAttempts   int    `mapstructure:"image_attempts"`
	QualitySuffix   string `mapstructure:"quality_suffix"`
	OptimizePrompts bool   `mapstructure:"optimize_prompts"`
	FanoutLimit     int    `mapstructure:"fanout_limit"` // 每个扇出点的最大并发，<=0 不限制
	OutputDir       string `mapstructure:"output_dir"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 产物镜像存储配置，Type 为空表示不镜像
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss, minio
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
	MinIO *MinIOConfig `mapstructure:"minio,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
	BaseURL  string `mapstructure:"base_url"`
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
}

// MinIOConfig MinIO/S3 配置
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

// CheckpointConfig 检查点配置
type CheckpointConfig struct {
	Type string        `mapstructure:"type"` // memory, redis
	TTL  time.Duration `mapstructure:"ttl"`
}

// Scene modes
const (
	SceneModeSingle = "single"
	SceneModeDialog = "dialog"
)

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	return c.Story.Validate()
}

// Validate 验证故事配置
func (s *StoryConfig) Validate() error {
	if s.KeyframeCount < 1 {
		return fmt.Errorf("keyframe_count must be >= 1, got %d", s.KeyframeCount)
	}
	switch s.SceneMode {
	case SceneModeSingle, SceneModeDialog:
	default:
		return fmt.Errorf("invalid scene_mode %q, must be single/dialog", s.SceneMode)
	}
	if s.ImageAttempts < 1 {
		return fmt.Errorf("image_attempts must be >= 1, got %d", s.ImageAttempts)
	}
	return nil
}

// RequireCredentials 检查本次运行开启的功能所需凭证是否齐全
func (c *Config) RequireCredentials(images, voiceover bool) error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("%w: ai.api_key", ErrMissingCredential)
	}
	if images && c.Leonardo.APIKey == "" {
		return fmt.Errorf("%w: leonardo.api_key", ErrMissingCredential)
	}
	if voiceover && c.TTS.APIKey == "" {
		return fmt.Errorf("%w: tts.api_key", ErrMissingCredential)
	}
	return nil
}
