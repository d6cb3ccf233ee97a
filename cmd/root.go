package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyreel/internal/config"
	"storyreel/internal/pkg/logger"
	storysvc "storyreel/internal/service/story"
)

var (
	cfgFile string
	debug   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "storyreel",
	Short: "StoryReel - keyword-to-story generator",
	Long: `StoryReel turns a handful of keywords into an illustrated short story:
script, characters, keyframes, scenes, images, motion clips and voiceover.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./configs/config.yaml)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.String("log-level", "info", "log level (trace/debug/info/warn/error/fatal)")
	flags.String("log-format", "console", "log format (json/console)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

func initConfig() {
	// .env 只补充未设置的环境变量
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.storyreel")
	}

	viper.SetEnvPrefix("STORYREEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindCredentialEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

// bindCredentialEnv 允许使用各服务惯用的环境变量名
func bindCredentialEnv() {
	_ = viper.BindEnv("ai.api_key", "STORYREEL_AI_API_KEY", "OPENAI_API_KEY", "ARK_API_KEY")
	_ = viper.BindEnv("leonardo.api_key", "STORYREEL_LEONARDO_API_KEY", "LEONARDO_API_KEY")
	_ = viper.BindEnv("tts.api_key", "STORYREEL_TTS_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("mongo.uri", "STORYREEL_MONGO_URI", "MONGO_URI")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.options.temperature", 0.7)
	viper.SetDefault("ai.options.max_tokens", 4096)
	viper.SetDefault("ai.options.top_p", 1.0)

	// Leonardo
	viper.SetDefault("leonardo.width", 512)
	viper.SetDefault("leonardo.height", 512)
	viper.SetDefault("leonardo.guidance_scale", 7)
	viper.SetDefault("leonardo.motion_strength", 5)
	viper.SetDefault("leonardo.poll_interval", "5s")
	viper.SetDefault("leonardo.max_wait", "300s")

	// TTS / FFmpeg
	viper.SetDefault("tts.model", "tts-1")
	viper.SetDefault("tts.timeout", "60s")
	viper.SetDefault("ffmpeg.ffmpeg_path", "ffmpeg")
	viper.SetDefault("ffmpeg.ffprobe_path", "ffprobe")

	// Story
	viper.SetDefault("story.keyframe_count", 4)
	viper.SetDefault("story.scene_mode", config.SceneModeSingle)
	viper.SetDefault("story.image_attempts", storysvc.DefaultImageAttempts)
	viper.SetDefault("story.quality_suffix", storysvc.DefaultQualitySuffix)
	viper.SetDefault("story.output_dir", "output")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stderr")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB / Redis
	viper.SetDefault("mongo.database", "storyreel")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Checkpoint
	viper.SetDefault("checkpoint.type", "memory")
	viper.SetDefault("checkpoint.ttl", "24h")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
