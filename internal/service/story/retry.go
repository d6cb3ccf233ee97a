package story

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"storyreel/internal/model/story"
	"storyreel/internal/pkg/leonardo"
	"storyreel/internal/pkg/poller"
)

const (
	DefaultImageAttempts = 3
	DefaultQualitySuffix = ", highly detailed, sharp focus, best quality"
)

// RetryPolicy 图片重试策略
type RetryPolicy struct {
	ImageAttempts int
	QualitySuffix string // 第 2 次起追加在提示词之后，每次相同
}

// AssetController 单个场景的产物生成：图片重试与动图兜底
// 无共享可变状态，可被多个场景并发调用
type AssetController struct {
	images   ImageJobs
	motion   MotionJobs
	renderer StaticRenderer
	download Downloader
	policy   RetryPolicy
	poll     poller.Options
}

// NewAssetController 创建产物控制器，images/motion/renderer 可为 nil（对应功能关闭）
func NewAssetController(images ImageJobs, motion MotionJobs, renderer StaticRenderer, download Downloader, policy RetryPolicy, poll poller.Options) *AssetController {
	if policy.ImageAttempts <= 0 {
		policy.ImageAttempts = DefaultImageAttempts
	}
	if download == nil {
		download = leonardo.FetchAndStore
	}
	return &AssetController{
		images:   images,
		motion:   motion,
		renderer: renderer,
		download: download,
		policy:   policy,
		poll:     poll,
	}
}

// PromptForAttempt 第 attempt 次（从 1 开始）使用的提示词
func (p RetryPolicy) PromptForAttempt(prompt string, attempt int) string {
	if attempt <= 1 || p.QualitySuffix == "" {
		return prompt
	}
	return prompt + p.QualitySuffix
}

// GenerateImage 生成图片并下载到 destBase + 扩展名
// 重试耗尽时返回 nil 和 ErrNoImage
func (c *AssetController) GenerateImage(ctx context.Context, prompt string, style story.VisualStyle, destBase string) (*story.AssetResult, error) {
	if c.images == nil {
		return nil, fmt.Errorf("%w: image generation is not configured", ErrNoImage)
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.ImageAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := c.imageAttempt(ctx, c.policy.PromptForAttempt(prompt, attempt), style, destBase)
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Str("job_id", res.JobID).Msg("图片重试成功")
			}
			return res, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.policy.ImageAttempts).Msg("图片生成失败")
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrNoImage, c.policy.ImageAttempts, lastErr)
}

func (c *AssetController) imageAttempt(ctx context.Context, prompt string, style story.VisualStyle, destBase string) (*story.AssetResult, error) {
	job, err := c.images.SubmitImage(ctx, prompt, style)
	if err != nil {
		return nil, err
	}
	out, err := poller.Poll(ctx, job.ID, c.images.ImageStatus, c.poll)
	if err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return nil, err
	}

	dest := destBase + leonardo.ExtensionFromURL(out.Payload.URL, ".jpg")
	if _, err := c.download(ctx, out.Payload.URL, dest); err != nil {
		return nil, fmt.Errorf("download image of job %s: %w", job.ID, err)
	}
	return &story.AssetResult{AssetPath: dest, JobID: job.ID, ExternalAssetID: out.Payload.ID}, nil
}

// GenerateMotion 基于已完成的图片生成动图，只尝试一次
// 任何失败都转入静态视频兜底，兜底只执行一次，失败即为该场景的最终结果
func (c *AssetController) GenerateMotion(ctx context.Context, image *story.AssetResult, dest string) (*story.AssetResult, error) {
	if image.Empty() {
		return nil, fmt.Errorf("motion requires an image: %w", ErrNoImage)
	}

	res, err := c.motionAttempt(ctx, image, dest)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	log.Warn().Err(err).Str("image", image.AssetPath).Msg("动图生成失败，使用静态视频兜底")
	return c.RenderStatic(ctx, image, dest)
}

func (c *AssetController) motionAttempt(ctx context.Context, image *story.AssetResult, dest string) (*story.AssetResult, error) {
	if c.motion == nil {
		return nil, errors.New("motion generation is not configured")
	}
	job, err := c.motion.SubmitMotion(ctx, image.ExternalAssetID)
	if err != nil {
		return nil, err
	}
	out, err := poller.Poll(ctx, job.ID, c.motion.MotionStatus, c.poll)
	if err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return nil, err
	}
	if _, err := c.download(ctx, out.Payload.URL, dest); err != nil {
		return nil, fmt.Errorf("download motion of job %s: %w", job.ID, err)
	}
	return &story.AssetResult{AssetPath: dest, JobID: job.ID, ExternalAssetID: image.ExternalAssetID}, nil
}

// RenderStatic 用本地图片渲染 5s 512x512 24fps 静态视频
func (c *AssetController) RenderStatic(ctx context.Context, image *story.AssetResult, dest string) (*story.AssetResult, error) {
	if image.Empty() {
		return nil, fmt.Errorf("static video requires an image: %w", ErrNoImage)
	}
	if c.renderer == nil {
		return nil, fmt.Errorf("%w: renderer is not configured", ErrFallbackFailed)
	}
	if err := c.renderer.RenderStaticVideo(ctx, image.AssetPath, dest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackFailed, err)
	}
	return &story.AssetResult{AssetPath: dest, ExternalAssetID: image.ExternalAssetID, Static: true}, nil
}
