package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"storyreel/internal/config"
)

// 静态视频兜底参数
const (
	StaticDuration = 5 * time.Second
	StaticSize     = 512
	StaticFPS      = 24
)

// Client FFmpeg 客户端
// 用于封装 FFmpeg 命令调用
type Client struct {
	ffmpegPath  string // FFmpeg 可执行文件路径（默认: ffmpeg）
	ffprobePath string // FFprobe 可执行文件路径（默认: ffprobe）
}

// NewClient 创建 FFmpeg 客户端
func NewClient(cfg config.FFmpegConfig) *Client {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := cfg.FFprobePath
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Available 检查 ffmpeg 是否可执行
func (c *Client) Available(ctx context.Context) error {
	if _, err := exec.LookPath(c.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", c.ffmpegPath, err)
	}
	return exec.CommandContext(ctx, c.ffmpegPath, "-version").Run()
}

// RenderStaticVideo 用单张图片渲染固定时长的视频，作为动图生成失败时的兜底
func (c *Client) RenderStaticVideo(ctx context.Context, imagePath, outputPath string) error {
	return c.CreateImageVideo(ctx, imagePath, outputPath, StaticDuration, StaticSize, StaticSize, StaticFPS)
}

// CreateImageVideo 从图片创建视频
// 图片会被缩放并补边到 width x height，输出 H.264 / yuv420p
func (c *Client) CreateImageVideo(ctx context.Context, imagePath, outputPath string, duration time.Duration, width, height, fps int) error {
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("input image: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// 先渲染到同目录临时文件，保留扩展名让 ffmpeg 识别封装格式；失败时不留下半成品
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(filepath.Base(outputPath), ext)
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+base+".*.part"+ext)
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d",
		width, height, width, height, fps)
	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		"-vf", filter,
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		tmpPath,
	}

	log.Debug().Str("image", imagePath).Str("output", outputPath).Strs("args", args).Msg("渲染静态视频")
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error().Err(err).Str("output", string(output)).Msg("ffmpeg 执行失败")
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output for %s", outputPath)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("move video into place: %w", err)
	}
	return nil
}
