package story

import (
	"context"
	"errors"

	"storyreel/internal/model/story"
	"storyreel/internal/pkg/leonardo"
	"storyreel/internal/pkg/poller"
)

var (
	// ErrNoImage 图片重试耗尽，场景没有图片
	ErrNoImage = errors.New("no image for scene")
	// ErrFallbackFailed 动图失败后静态视频兜底也失败
	ErrFallbackFailed = errors.New("static video fallback failed")
	// ErrNoAudio 配音失败
	ErrNoAudio = errors.New("no voiceover for scene")
)

// ImageJobs 图片生成任务（*leonardo.Client 实现）
type ImageJobs interface {
	SubmitImage(ctx context.Context, prompt string, style story.VisualStyle) (story.GenerationJob, error)
	ImageStatus(ctx context.Context, jobID string) (poller.Snapshot[leonardo.ImageAsset], error)
}

// MotionJobs 动图生成任务（*leonardo.Client 实现）
type MotionJobs interface {
	SubmitMotion(ctx context.Context, imageID string) (story.GenerationJob, error)
	MotionStatus(ctx context.Context, jobID string) (poller.Snapshot[leonardo.MotionAsset], error)
}

// StaticRenderer 用图片渲染静态视频（*ffmpeg.Client 实现）
type StaticRenderer interface {
	RenderStaticVideo(ctx context.Context, imagePath, outputPath string) error
}

// Synthesizer 文本转语音（*tts.Client 实现）
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Downloader 下载远端资产到本地路径
type Downloader func(ctx context.Context, url, dest string) (int64, error)
