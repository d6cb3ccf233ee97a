package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"storyreel/internal/ai"
	"storyreel/internal/config"
	"storyreel/internal/pkg/cache"
	"storyreel/internal/pkg/ffmpeg"
	"storyreel/internal/pkg/leonardo"
	"storyreel/internal/pkg/poller"
	"storyreel/internal/pkg/tts"
	storysvc "storyreel/internal/service/story"
)

const (
	defaultCheckpointTTL = 24 * time.Hour
	memoryCleanup        = 10 * time.Minute
)

// Features 一次运行开启的外部能力
type Features struct {
	Images      bool
	Motion      bool
	StaticVideo bool
	Voiceover   bool
}

// NewStoryPipeline 按配置组装流水线，只创建本次开启的功能所需的客户端
// checkpoint 可为 nil
func NewStoryPipeline(ctx context.Context, cfg *config.Config, f Features, checkpoint *storysvc.Checkpointer) (*storysvc.Pipeline, error) {
	if err := cfg.RequireCredentials(f.Images, f.Voiceover); err != nil {
		return nil, err
	}

	aiClient, err := ai.NewClient(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai client: %w", err)
	}
	stages := storysvc.NewLLMStages(aiClient)

	var assets *storysvc.AssetController
	if f.Images {
		assets, err = newAssetController(ctx, cfg, f)
		if err != nil {
			return nil, err
		}
	}

	var voice storysvc.Synthesizer
	if f.Voiceover {
		tc, err := tts.NewClient(cfg.TTS)
		if err != nil {
			return nil, fmt.Errorf("init tts client: %w", err)
		}
		voice = tc
	}

	return storysvc.NewPipeline(stages, assets, voice, checkpoint), nil
}

func newAssetController(ctx context.Context, cfg *config.Config, f Features) (*storysvc.AssetController, error) {
	lc := cfg.Leonardo
	leo, err := leonardo.NewClient(leonardo.Config{
		APIKey:         lc.APIKey,
		BaseURL:        lc.BaseURL,
		ModelID:        lc.ModelID,
		Width:          lc.Width,
		Height:         lc.Height,
		GuidanceScale:  lc.GuidanceScale,
		MotionStrength: lc.MotionStrength,
		RateInterval:   lc.RateInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init leonardo client: %w", err)
	}

	var renderer storysvc.StaticRenderer
	if f.Motion || f.StaticVideo {
		ff := ffmpeg.NewClient(cfg.FFmpeg)
		if err := ff.Available(ctx); err != nil {
			// 只影响兜底视频，场景级错误会记录在结果上
			log.Warn().Err(err).Msg("ffmpeg 不可用，静态视频将失败")
		}
		renderer = ff
	}

	policy := storysvc.RetryPolicy{
		ImageAttempts: cfg.Story.ImageAttempts,
		QualitySuffix: cfg.Story.QualitySuffix,
	}
	poll := poller.Options{Interval: lc.PollInterval, MaxWait: lc.MaxWait}
	return storysvc.NewAssetController(leo, leo, renderer, nil, policy, poll), nil
}

// NewCheckpointStore 按 checkpoint.type 选择检查点存储，cleanup 总是非 nil
func NewCheckpointStore(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.Checkpoint.Type {
	case "", "memory":
		return cache.NewMemoryCache(checkpointTTL(cfg), memoryCleanup), func() {}, nil
	case "redis":
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect redis for checkpoints: %w", err)
		}
		closeFn := func() {
			if err := rc.Close(); err != nil {
				log.Warn().Err(err).Msg("关闭 Redis 连接失败")
			}
		}
		return rc, closeFn, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported checkpoint type: %s", cfg.Checkpoint.Type)
	}
}

// NewCheckpointer 在存储之上创建检查点
func NewCheckpointer(cfg *config.Config, store cache.Store) *storysvc.Checkpointer {
	return storysvc.NewCheckpointer(store, checkpointTTL(cfg))
}

func checkpointTTL(cfg *config.Config) time.Duration {
	if cfg.Checkpoint.TTL <= 0 {
		return defaultCheckpointTTL
	}
	return cfg.Checkpoint.TTL
}

// StoryOptions 由配置得到流水线默认参数
func StoryOptions(sc config.StoryConfig, f Features) storysvc.Options {
	return storysvc.Options{
		KeyframeCount:   sc.KeyframeCount,
		SceneMode:       sc.SceneMode,
		OptimizePrompts: sc.OptimizePrompts,
		Images:          f.Images,
		Motion:          f.Motion,
		StaticVideo:     f.StaticVideo,
		Voiceover:       f.Voiceover,
		FanoutLimit:     sc.FanoutLimit,
		OutputDir:       sc.OutputDir,
	}
}
