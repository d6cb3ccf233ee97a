package leonardo

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
	"golang.org/x/time/rate"

	"storyreel/internal/model/story"
	"storyreel/internal/pkg/poller"
)

const (
	DefaultBaseURL        = "https://cloud.leonardo.ai/api/rest/v1"
	DefaultModelID        = "1dd50843-d653-4516-a8e3-f0238ee453ff"
	DefaultSize           = 512
	DefaultGuidanceScale  = 7
	DefaultMotionStrength = 5
)

var (
	// ErrRejected 提交被拒绝（非 2xx 或缺少任务ID）
	ErrRejected = errors.New("leonardo rejected request")
	// ErrNoAsset 任务完成但没有返回资产
	ErrNoAsset = errors.New("leonardo job completed without asset")
)

// Config Leonardo 客户端配置
type Config struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	Width          int
	Height         int
	GuidanceScale  int
	MotionStrength int
	// RateInterval 两次提交之间的最小间隔，0 表示不限速
	RateInterval time.Duration
	HTTPClient   *http.Client
}

// Client Leonardo REST 客户端
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient 创建 Leonardo 客户端
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("leonardo api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultSize
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultSize
	}
	if cfg.GuidanceScale <= 0 {
		cfg.GuidanceScale = DefaultGuidanceScale
	}
	if cfg.MotionStrength <= 0 {
		cfg.MotionStrength = DefaultMotionStrength
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateInterval), 1)
	}
	return &Client{cfg: cfg, http: hc, limiter: limiter}, nil
}

// ImageAsset 完成的图片
type ImageAsset struct {
	URL string
	ID  string
}

// MotionAsset 完成的动图视频
type MotionAsset struct {
	URL string
}

type imageRequest struct {
	Prompt        string `json:"prompt"`
	ModelID       string `json:"modelId"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	NumImages     int    `json:"num_images"`
	GuidanceScale int    `json:"guidance_scale"`
	StyleUUID     string `json:"styleUUID,omitempty"`
}

type motionRequest struct {
	ImageID        string `json:"imageId"`
	MotionStrength int    `json:"motionStrength"`
	IsPublic       bool   `json:"isPublic"`
}

// SubmitImage 提交文生图任务，返回任务ID
func (c *Client) SubmitImage(ctx context.Context, prompt string, style story.VisualStyle) (story.GenerationJob, error) {
	body := imageRequest{
		Prompt:        prompt,
		ModelID:       c.cfg.ModelID,
		Width:         c.cfg.Width,
		Height:        c.cfg.Height,
		NumImages:     1,
		GuidanceScale: c.cfg.GuidanceScale,
		StyleUUID:     style.UUID(),
	}
	var resp struct {
		SDGenerationJob struct {
			GenerationID string `json:"generationId"`
		} `json:"sdGenerationJob"`
	}
	if err := c.submit(ctx, "/generations", body, &resp); err != nil {
		return story.GenerationJob{}, err
	}
	if resp.SDGenerationJob.GenerationID == "" {
		return story.GenerationJob{}, fmt.Errorf("%w: missing generationId", ErrRejected)
	}
	log.Info().Str("job_id", resp.SDGenerationJob.GenerationID).Str("style", style.String()).Msg("图片任务提交成功")
	return story.GenerationJob{ID: resp.SDGenerationJob.GenerationID, Kind: story.JobKindImage, Status: story.JobStatusPending}, nil
}

// SubmitMotion 基于已生成的图片提交动图任务
func (c *Client) SubmitMotion(ctx context.Context, imageID string) (story.GenerationJob, error) {
	if imageID == "" {
		return story.GenerationJob{}, fmt.Errorf("%w: image id is empty", ErrRejected)
	}
	body := motionRequest{ImageID: imageID, MotionStrength: c.cfg.MotionStrength, IsPublic: false}
	var resp struct {
		MotionSvdGenerationJob struct {
			GenerationID string `json:"generationId"`
		} `json:"motionSvdGenerationJob"`
	}
	if err := c.submit(ctx, "/generations-motion-svd", body, &resp); err != nil {
		return story.GenerationJob{}, err
	}
	if resp.MotionSvdGenerationJob.GenerationID == "" {
		return story.GenerationJob{}, fmt.Errorf("%w: missing generationId", ErrRejected)
	}
	log.Info().Str("job_id", resp.MotionSvdGenerationJob.GenerationID).Str("image_id", imageID).Msg("动图任务提交成功")
	return story.GenerationJob{ID: resp.MotionSvdGenerationJob.GenerationID, Kind: story.JobKindMotion, Status: story.JobStatusPending}, nil
}

// ImageStatus 查询图片任务，可直接作为 poller.FetchFunc
func (c *Client) ImageStatus(ctx context.Context, jobID string) (poller.Snapshot[ImageAsset], error) {
	var resp struct {
		GenerationsByPK struct {
			Status          string `json:"status"`
			GeneratedImages []struct {
				URL string `json:"url"`
				ID  string `json:"id"`
			} `json:"generated_images"`
		} `json:"generations_by_pk"`
	}
	if err := c.get(ctx, "/generations/"+jobID, &resp); err != nil {
		return poller.Snapshot[ImageAsset]{}, err
	}
	snap := poller.Snapshot[ImageAsset]{Status: story.ParseJobStatus(resp.GenerationsByPK.Status)}
	if imgs := resp.GenerationsByPK.GeneratedImages; len(imgs) > 0 {
		snap.Payload = ImageAsset{URL: imgs[0].URL, ID: imgs[0].ID}
	}
	if snap.Status == story.JobStatusComplete && snap.Payload.URL == "" {
		return snap, fmt.Errorf("image job %s: %w", jobID, ErrNoAsset)
	}
	return snap, nil
}

// MotionStatus 查询动图任务，可直接作为 poller.FetchFunc
func (c *Client) MotionStatus(ctx context.Context, jobID string) (poller.Snapshot[MotionAsset], error) {
	var resp struct {
		GenerationsMotionByPK struct {
			Status       string `json:"status"`
			URL          string `json:"url"`
			MotionMP4URL string `json:"motionMP4URL"`
		} `json:"generations_motion_by_pk"`
	}
	if err := c.get(ctx, "/generations-motion-svd/"+jobID, &resp); err != nil {
		return poller.Snapshot[MotionAsset]{}, err
	}
	g := resp.GenerationsMotionByPK
	url := g.URL
	if url == "" {
		url = g.MotionMP4URL
	}
	snap := poller.Snapshot[MotionAsset]{Status: story.ParseJobStatus(g.Status), Payload: MotionAsset{URL: url}}
	if snap.Status == story.JobStatusComplete && url == "" {
		return snap, fmt.Errorf("motion job %s: %w", jobID, ErrNoAsset)
	}
	return snap, nil
}

func (c *Client) submit(ctx context.Context, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	apiURL := c.cfg.BaseURL + path
	log.Debug().Str("api_url", apiURL).Str("request_body", string(data)).Msg("提交 Leonardo 任务")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, ErrRejected)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out, nil)
}

func (c *Client) do(req *http.Request, out any, statusErr error) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// 提交只接受 200，查询接受任意 2xx
	failed := resp.StatusCode < 200 || resp.StatusCode >= 300
	if statusErr != nil {
		failed = resp.StatusCode != http.StatusOK
	}
	if failed {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("url", req.URL.String()).
			Str("response_body", string(body)).
			Msg("Leonardo 请求失败")
		if statusErr != nil {
			return fmt.Errorf("%w: status %d, body: %s", statusErr, resp.StatusCode, string(body))
		}
		return fmt.Errorf("API request failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
