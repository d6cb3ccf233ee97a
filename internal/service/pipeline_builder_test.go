package service

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/config"
	"storyreel/internal/pkg/cache"
)

func TestNewStoryPipeline(t *testing.T) {
	Convey("按配置组装流水线", t, func() {
		ctx := context.Background()
		cfg := &config.Config{
			AI:    config.AIConfig{Provider: "openai", Model: "gpt-4o-mini"},
			Story: config.StoryConfig{KeyframeCount: 2, SceneMode: config.SceneModeSingle, ImageAttempts: 3},
		}

		Convey("缺少凭证是致命错误", func() {
			_, err := NewStoryPipeline(ctx, cfg, Features{}, nil)
			So(errors.Is(err, config.ErrMissingCredential), ShouldBeTrue)

			cfg.AI.APIKey = "sk-test"
			_, err = NewStoryPipeline(ctx, cfg, Features{Images: true}, nil)
			So(errors.Is(err, config.ErrMissingCredential), ShouldBeTrue)
			_, err = NewStoryPipeline(ctx, cfg, Features{Voiceover: true}, nil)
			So(errors.Is(err, config.ErrMissingCredential), ShouldBeTrue)
		})

		Convey("凭证齐全时创建成功", func() {
			cfg.AI.APIKey = "sk-test"
			cfg.Leonardo.APIKey = "leo"
			cfg.TTS.APIKey = "sk-tts"
			p, err := NewStoryPipeline(ctx, cfg, Features{Images: true, Voiceover: true}, nil)
			So(err, ShouldBeNil)
			So(p, ShouldNotBeNil)
		})
	})
}

func TestCheckpointStore(t *testing.T) {
	Convey("检查点存储选择", t, func() {
		cfg := &config.Config{}

		store, closeFn, err := NewCheckpointStore(cfg)
		So(err, ShouldBeNil)
		_, isMemory := store.(*cache.MemoryCache)
		So(isMemory, ShouldBeTrue)
		closeFn()
		So(checkpointTTL(cfg), ShouldEqual, defaultCheckpointTTL)

		cfg.Checkpoint.Type = "etcd"
		_, closeFn, err = NewCheckpointStore(cfg)
		So(err, ShouldNotBeNil)
		So(closeFn, ShouldNotBeNil)
	})
}

func TestStoryOptions(t *testing.T) {
	Convey("配置映射为运行参数", t, func() {
		opts := StoryOptions(config.StoryConfig{KeyframeCount: 3, SceneMode: "dialog", FanoutLimit: 2, OutputDir: "out", OptimizePrompts: true},
			Features{Images: true, Motion: true})
		So(opts.KeyframeCount, ShouldEqual, 3)
		So(opts.SceneMode, ShouldEqual, "dialog")
		So(opts.FanoutLimit, ShouldEqual, 2)
		So(opts.Images && opts.Motion, ShouldBeTrue)
		So(opts.Voiceover, ShouldBeFalse)
		So(opts.OptimizePrompts, ShouldBeTrue)
	})
}
