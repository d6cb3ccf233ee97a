package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"storyreel/internal/config"
	"storyreel/internal/model/run"
	"storyreel/internal/model/story"
	"storyreel/internal/pkg/id"
	"storyreel/internal/pkg/storage"
	runrepo "storyreel/internal/repository/run"
	storysvc "storyreel/internal/service/story"
)

// ErrInvalidInput 请求参数不合法
var ErrInvalidInput = errors.New("invalid input")

// StoryRunner 执行一次流水线
type StoryRunner interface {
	Run(ctx context.Context, req storysvc.Request) (*story.StoryResult, error)
}

// RunnerFactory 按开启的功能创建流水线
type RunnerFactory func(ctx context.Context, f Features) (StoryRunner, error)

// RunService 异步运行管理
type RunService interface {
	CreateRun(ctx context.Context, in CreateRunInput) (string, error)
	GetRun(ctx context.Context, runID string) (*run.Run, error)
	ListRuns(ctx context.Context, page, pageSize int64, status string) (*RunListResult, error)
	// Wait 等待所有已启动的运行结束
	Wait()
}

// CreateRunInput 创建运行请求，零值字段使用配置默认值
type CreateRunInput struct {
	Keywords        []string
	KeyframeCount   int
	SceneMode       string
	Images          bool
	Motion          bool
	StaticVideo     bool
	Voiceover       bool
	OptimizePrompts *bool
	ThreadID        string
}

// RunListResult 运行列表
type RunListResult struct {
	Runs     []*run.Run
	Total    int64
	Page     int64
	PageSize int64
}

type runService struct {
	baseCtx  context.Context
	repo     runrepo.RunRepository
	factory  RunnerFactory
	store    storage.Storage // 可为 nil
	defaults config.StoryConfig
	wg       sync.WaitGroup
}

// NewRunService 创建运行服务，运行在 baseCtx 取消时中止
func NewRunService(baseCtx context.Context, repo runrepo.RunRepository, factory RunnerFactory, store storage.Storage, defaults config.StoryConfig) RunService {
	return &runService{
		baseCtx:  baseCtx,
		repo:     repo,
		factory:  factory,
		store:    store,
		defaults: defaults,
	}
}

// ConfigRunnerFactory 基于配置的流水线工厂，所有运行共享同一个检查点
func ConfigRunnerFactory(cfg *config.Config, checkpoint *storysvc.Checkpointer) RunnerFactory {
	return func(ctx context.Context, f Features) (StoryRunner, error) {
		p, err := NewStoryPipeline(ctx, cfg, f, checkpoint)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (s *runService) settings(in CreateRunInput) (run.Settings, error) {
	st := run.Settings{
		KeyframeCount:   s.defaults.KeyframeCount,
		SceneMode:       s.defaults.SceneMode,
		Images:          in.Images,
		Motion:          in.Motion,
		StaticVideo:     in.StaticVideo,
		Voiceover:       in.Voiceover,
		OptimizePrompts: s.defaults.OptimizePrompts,
		ThreadID:        in.ThreadID,
	}
	if in.KeyframeCount != 0 {
		st.KeyframeCount = in.KeyframeCount
	}
	if in.SceneMode != "" {
		st.SceneMode = in.SceneMode
	}
	if in.OptimizePrompts != nil {
		st.OptimizePrompts = *in.OptimizePrompts
	}

	if st.KeyframeCount < 1 {
		return st, fmt.Errorf("%w: keyframe_count must be >= 1", ErrInvalidInput)
	}
	if st.SceneMode != config.SceneModeSingle && st.SceneMode != config.SceneModeDialog {
		return st, fmt.Errorf("%w: scene_mode must be single or dialog", ErrInvalidInput)
	}
	if (st.Motion || st.StaticVideo) && !st.Images {
		return st, fmt.Errorf("%w: video requires images", ErrInvalidInput)
	}
	return st, nil
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (s *runService) CreateRun(ctx context.Context, in CreateRunInput) (string, error) {
	keywords := cleanKeywords(in.Keywords)
	if len(keywords) == 0 {
		return "", fmt.Errorf("%w: at least one keyword is required", ErrInvalidInput)
	}
	settings, err := s.settings(in)
	if err != nil {
		return "", err
	}

	runID := id.NewRunID()
	rec := &run.Run{
		ID:        runID,
		Keywords:  keywords,
		Settings:  settings,
		Status:    run.StatusPending,
		OutputDir: filepath.Join(s.defaults.OutputDir, runID),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(rec)
	}()
	return runID, nil
}

func (s *runService) GetRun(ctx context.Context, runID string) (*run.Run, error) {
	rec, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return rec, nil
}

func (s *runService) ListRuns(ctx context.Context, page, pageSize int64, status string) (*RunListResult, error) {
	runs, total, err := s.repo.List(ctx, page, pageSize, status)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return &RunListResult{Runs: runs, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *runService) Wait() {
	s.wg.Wait()
}

// tracker 串行化同一运行记录的并发更新
type tracker struct {
	mu   sync.Mutex
	repo runrepo.RunRepository
	rec  *run.Run
}

func (t *tracker) update(mutate func(r *run.Run)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mutate(t.rec)
	// 使用独立 context，运行被取消时仍要写入最终状态
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.repo.Update(ctx, t.rec); err != nil {
		log.Warn().Err(err).Str("run_id", t.rec.ID).Msg("更新运行记录失败")
	}
}

func (s *runService) execute(rec *run.Run) {
	logger := log.With().Str("run_id", rec.ID).Logger()
	t := &tracker{repo: s.repo, rec: rec}
	t.update(func(r *run.Run) { r.Status = run.StatusRunning })

	fail := func(err error) {
		logger.Error().Err(err).Msg("运行失败")
		t.update(func(r *run.Run) {
			r.Status = run.StatusFailed
			r.Error = err.Error()
			now := time.Now()
			r.CompletedAt = &now
		})
	}

	st := rec.Settings
	features := Features{Images: st.Images, Motion: st.Motion, StaticVideo: st.StaticVideo, Voiceover: st.Voiceover}
	runner, err := s.factory(s.baseCtx, features)
	if err != nil {
		fail(err)
		return
	}

	opts := StoryOptions(s.defaults, features)
	opts.KeyframeCount = st.KeyframeCount
	opts.SceneMode = st.SceneMode
	opts.OptimizePrompts = st.OptimizePrompts
	opts.ThreadID = st.ThreadID
	opts.OutputDir = rec.OutputDir
	opts.OnStage = func(stage string) {
		t.update(func(r *run.Run) { r.CurrentStage = stage })
	}
	opts.OnScene = func(res story.SceneResult) {
		t.update(func(r *run.Run) {
			r.ScenesDone++
			if len(res.Errors) > 0 {
				r.ScenesFailed++
			}
		})
	}

	res, err := runner.Run(s.baseCtx, storysvc.Request{RunID: rec.ID, Keywords: rec.Keywords, Options: opts})
	if err != nil {
		fail(err)
		return
	}
	if _, err := storysvc.WriteOutputs(rec.OutputDir, res, storysvc.WriteOptions{Script: true, Characters: true}); err != nil {
		fail(fmt.Errorf("write outputs: %w", err))
		return
	}

	var assets map[string]string
	if s.store != nil {
		assets, err = storage.MirrorDir(s.baseCtx, s.store, "runs/"+rec.ID, rec.OutputDir)
		if err != nil {
			logger.Warn().Err(err).Str("storage", s.store.GetStorageType()).Msg("产物镜像部分失败")
		}
	}

	t.update(func(r *run.Run) {
		r.Status = run.StatusCompleted
		r.Assets = assets
		now := time.Now()
		r.CompletedAt = &now
	})
	logger.Info().Int("failed_scenes", res.FailedScenes()).Msg("运行完成")
}
