package story

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"storyreel/internal/config"
	"storyreel/internal/model/story"
	"storyreel/internal/pkg/fanout"
	"storyreel/internal/pkg/tts"
)

// 阶段名，用于进度回调与运行记录
const (
	StageScript     = "script"
	StageCharacters = "characters"
	StageEnhance    = "enhance"
	StageKeyframes  = "keyframes"
	StageScenes     = "scenes"
	StagePrompts    = "prompts"
	StageAssets     = "assets"
	StageDone       = "done"
)

// Options 单次运行的参数
type Options struct {
	KeyframeCount   int
	SceneMode       string
	OptimizePrompts bool
	Images          bool
	Motion          bool
	StaticVideo     bool
	Voiceover       bool
	FanoutLimit     int
	OutputDir       string // 资产落盘目录，开启任一资产时必填
	ThreadID        string // 检查点名称，为空不使用检查点
	// OnStage 进入每个阶段时回调，可为 nil
	OnStage func(stage string)
	// OnScene 每个场景完成时回调，可为 nil；会被并发调用
	OnScene func(res story.SceneResult)
}

// Request 一次生成请求
type Request struct {
	RunID    string
	Keywords []string
	Options  Options
}

func (r *Request) validate() error {
	if len(r.Keywords) == 0 {
		return errors.New("at least one keyword is required")
	}
	o := r.Options
	if o.KeyframeCount < 1 {
		return fmt.Errorf("keyframe count must be >= 1, got %d", o.KeyframeCount)
	}
	if o.SceneMode != config.SceneModeSingle && o.SceneMode != config.SceneModeDialog {
		return fmt.Errorf("invalid scene mode %q", o.SceneMode)
	}
	if (o.Motion || o.StaticVideo) && !o.Images {
		return errors.New("video generation requires images")
	}
	if (o.Images || o.Voiceover) && o.OutputDir == "" {
		return errors.New("output directory is required for asset generation")
	}
	return nil
}

// Pipeline 故事生成流水线
type Pipeline struct {
	stages     Stages
	assets     *AssetController
	voice      Synthesizer
	checkpoint *Checkpointer
}

// NewPipeline 创建流水线，assets/voice/checkpoint 可为 nil（对应功能关闭）
func NewPipeline(stages Stages, assets *AssetController, voice Synthesizer, checkpoint *Checkpointer) *Pipeline {
	return &Pipeline{stages: stages, assets: assets, voice: voice, checkpoint: checkpoint}
}

// Run 执行完整流水线
// 剧本、角色、增强、关键帧/风格、场景阶段失败是致命错误；单个场景的资产失败只记录在该场景上
func (p *Pipeline) Run(ctx context.Context, req Request) (*story.StoryResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	opts := req.Options
	if opts.Images || opts.Voiceover {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	logger := log.With().Str("run_id", req.RunID).Logger()
	start := time.Now()
	notify := func(stage string) {
		logger.Info().Str("stage", stage).Msg("进入阶段")
		if opts.OnStage != nil {
			opts.OnStage(stage)
		}
	}

	prelude, err := p.prelude(ctx, req, logger, notify)
	if err != nil {
		return nil, err
	}

	notify(StageScenes)
	keyframes, err := p.scenes(ctx, prelude, opts)
	if err != nil {
		return nil, err
	}
	if opts.SceneMode == config.SceneModeDialog {
		markIntroductions(keyframes)
	}

	if opts.OptimizePrompts {
		notify(StagePrompts)
		p.optimizePrompts(ctx, keyframes, prelude, logger)
	}

	notify(StageAssets)
	p.generateAssets(ctx, keyframes, prelude.VisualStyle, opts, logger)

	notify(StageDone)
	result := &story.StoryResult{
		RunID:       req.RunID,
		Keywords:    req.Keywords,
		Script:      prelude.Script,
		Characters:  prelude.Characters,
		VisualStyle: prelude.VisualStyle,
		Keyframes:   keyframes,
	}
	logger.Info().
		Int("keyframes", len(keyframes)).
		Int("failed_scenes", result.FailedScenes()).
		Dur("elapsed", time.Since(start)).
		Msg("故事生成完成")
	return result, nil
}

// prelude 扇出前的串行阶段，命中检查点时直接复用
func (p *Pipeline) prelude(ctx context.Context, req Request, logger zerolog.Logger, notify func(string)) (*Prelude, error) {
	opts := req.Options
	cached, err := p.checkpoint.Load(ctx, opts.ThreadID, req.Keywords, opts.KeyframeCount)
	if err != nil {
		logger.Warn().Err(err).Str("thread_id", opts.ThreadID).Msg("读取检查点失败，重新生成")
	}
	if cached != nil {
		logger.Info().Str("thread_id", opts.ThreadID).Msg("复用检查点")
		return cached, nil
	}

	notify(StageScript)
	script, err := p.stages.GenerateScript(ctx, req.Keywords, opts.KeyframeCount)
	if err != nil {
		return nil, fmt.Errorf("generate script: %w", err)
	}

	notify(StageCharacters)
	roster, err := p.stages.ExtractCharacters(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("extract characters: %w", err)
	}

	notify(StageEnhance)
	enhanced, err := p.stages.EnhanceScript(ctx, script, roster, opts.KeyframeCount)
	if err != nil {
		return nil, fmt.Errorf("enhance script: %w", err)
	}

	notify(StageKeyframes)
	var (
		keyframes []story.Keyframe
		style     story.VisualStyle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kfs, err := p.stages.ExtractKeyframes(gctx, enhanced, opts.KeyframeCount, roster)
		if err != nil {
			return fmt.Errorf("extract keyframes: %w", err)
		}
		keyframes = kfs
		return nil
	})
	g.Go(func() error {
		s, err := p.stages.DetermineVisualStyle(gctx, enhanced)
		if err != nil {
			return fmt.Errorf("determine visual style: %w", err)
		}
		style = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(keyframes) != opts.KeyframeCount {
		return nil, fmt.Errorf("extract keyframes: expected %d, got %d", opts.KeyframeCount, len(keyframes))
	}
	if style.UUID() == "" {
		return nil, fmt.Errorf("determine visual style: %q is not in the catalog", style)
	}

	prelude := &Prelude{
		Keywords:      req.Keywords,
		KeyframeCount: opts.KeyframeCount,
		Script:        story.Script{Original: script, Enhanced: enhanced},
		Characters:    roster,
		Keyframes:     keyframes,
		VisualStyle:   style,
	}
	if err := p.checkpoint.Save(ctx, opts.ThreadID, prelude); err != nil {
		logger.Warn().Err(err).Str("thread_id", opts.ThreadID).Msg("保存检查点失败")
	}
	return prelude, nil
}

// scenes 按关键帧并发生成场景，结果与关键帧按位置对应
func (p *Pipeline) scenes(ctx context.Context, prelude *Prelude, opts Options) ([]story.KeyframeResult, error) {
	script := prelude.Script.Latest()
	results := fanout.Map(ctx, prelude.Keyframes, opts.FanoutLimit,
		func(ctx context.Context, i int, kf story.Keyframe) ([]story.Scene, error) {
			return p.stages.GenerateScenes(ctx, script, kf, prelude.Characters, opts.SceneMode)
		})
	if err := fanout.FirstError(results); err != nil {
		return nil, fmt.Errorf("generate scenes: %w", err)
	}

	keyframes := make([]story.KeyframeResult, len(prelude.Keyframes))
	for k, kf := range prelude.Keyframes {
		scenes := results[k].Value
		if len(scenes) == 0 {
			return nil, fmt.Errorf("generate scenes: keyframe %d has no scenes", k+1)
		}
		kr := story.KeyframeResult{Index: k + 1, Keyframe: kf, VisualStyle: prelude.VisualStyle, Scenes: make([]story.SceneResult, len(scenes))}
		for s, sc := range scenes {
			c, ok := prelude.Characters.Find(sc.Character.Name)
			if !ok {
				return nil, fmt.Errorf("generate scenes: keyframe %d scene %d references unknown character %q", k+1, s+1, sc.Character.Name)
			}
			sc.Character = c
			kr.Scenes[s] = story.SceneResult{KeyframeIndex: k + 1, SceneIndex: s + 1, Scene: sc}
		}
		keyframes[k] = kr
	}
	return keyframes, nil
}

// markIntroductions 在汇合点按关键帧顺序折叠出"已出场角色"，首次出场的场景标记 Introduces
// 以关键帧为单位：角色在之前的关键帧没出现过，本关键帧里它的每个场景都会被标记
func markIntroductions(keyframes []story.KeyframeResult) {
	seen := make(map[string]bool)
	for k := range keyframes {
		var speakers []string
		for s := range keyframes[k].Scenes {
			sc := &keyframes[k].Scenes[s].Scene
			if sc.Character.Role == story.RoleNarrator {
				continue
			}
			key := strings.ToLower(sc.Character.Name)
			if !seen[key] {
				sc.Introduces = true
			}
			speakers = append(speakers, key)
		}
		for _, key := range speakers {
			seen[key] = true
		}
	}
}

// optimizePrompts 把所有场景一次交给模型改写提示词，失败时保留原始描述
func (p *Pipeline) optimizePrompts(ctx context.Context, keyframes []story.KeyframeResult, prelude *Prelude, logger zerolog.Logger) {
	var (
		all  []story.Scene
		refs []*story.Scene
	)
	for k := range keyframes {
		for s := range keyframes[k].Scenes {
			all = append(all, keyframes[k].Scenes[s].Scene)
			refs = append(refs, &keyframes[k].Scenes[s].Scene)
		}
	}

	prompts, err := p.stages.OptimizePrompts(ctx, all, prelude.Characters, prelude.VisualStyle)
	if err == nil && len(prompts) != len(refs) {
		err = fmt.Errorf("got %d prompts for %d scenes", len(prompts), len(refs))
	}
	if err != nil {
		logger.Warn().Err(err).Msg("提示词优化失败，使用原始描述")
		return
	}
	for i, sc := range refs {
		sc.LeonardoPrompt = prompts[i]
	}
}

// generateAssets 每个场景并发：图片后接视频，配音与之并行
func (p *Pipeline) generateAssets(ctx context.Context, keyframes []story.KeyframeResult, style story.VisualStyle, opts Options, logger zerolog.Logger) {
	if !opts.Images && !opts.Voiceover {
		return
	}
	var units []*story.SceneResult
	for k := range keyframes {
		for s := range keyframes[k].Scenes {
			units = append(units, &keyframes[k].Scenes[s])
		}
	}

	results := fanout.Map(ctx, units, opts.FanoutLimit, func(ctx context.Context, _ int, res *story.SceneResult) (struct{}, error) {
		p.generateScene(ctx, res, style, opts, logger)
		return struct{}{}, nil
	})
	for i, r := range results {
		if r.Err != nil {
			units[i].Errors = append(units[i].Errors, r.Err.Error())
		}
	}
}

func (p *Pipeline) generateScene(ctx context.Context, res *story.SceneResult, style story.VisualStyle, opts Options, logger zerolog.Logger) {
	sl := logger.With().Int("keyframe", res.KeyframeIndex).Int("scene", res.SceneIndex).Logger()
	base := filepath.Join(opts.OutputDir, SceneBaseName(res.KeyframeIndex, res.SceneIndex))

	var visualErrs, voiceErrs []string
	branches := []func(ctx context.Context){
		func(ctx context.Context) {
			if !opts.Images {
				return
			}
			img, video, errs := p.visual(ctx, res.Scene, style, base, opts)
			res.Image, res.Video, visualErrs = img, video, errs
		},
		func(ctx context.Context) {
			if !opts.Voiceover {
				return
			}
			voice, err := p.voiceover(ctx, res.Scene, base+"_voice.mp3")
			if err != nil {
				voiceErrs = append(voiceErrs, err.Error())
				return
			}
			res.Voiceover = voice
		},
	}
	out := fanout.Map(ctx, branches, 0, func(ctx context.Context, _ int, run func(context.Context)) (struct{}, error) {
		run(ctx)
		return struct{}{}, nil
	})

	res.Errors = append(res.Errors, visualErrs...)
	res.Errors = append(res.Errors, voiceErrs...)
	for _, r := range out {
		if r.Err != nil {
			res.Errors = append(res.Errors, r.Err.Error())
		}
	}

	if len(res.Errors) > 0 {
		sl.Warn().Strs("errors", res.Errors).Msg("场景部分资产生成失败")
	} else {
		sl.Info().Msg("场景资产生成完成")
	}
	if opts.OnScene != nil {
		opts.OnScene(*res)
	}
}

// visual 图片与视频，视频严格在同一场景的图片之后
func (p *Pipeline) visual(ctx context.Context, scene story.Scene, style story.VisualStyle, base string, opts Options) (*story.AssetResult, *story.AssetResult, []string) {
	var errs []string
	if p.assets == nil {
		return nil, nil, []string{"image: generation is not configured"}
	}
	img, err := p.assets.GenerateImage(ctx, scene.EffectivePrompt(), style, base+"_image")
	if err != nil {
		errs = append(errs, "image: "+err.Error())
		if opts.Motion || opts.StaticVideo {
			errs = append(errs, "video: skipped, no image")
		}
		return nil, nil, errs
	}

	var video *story.AssetResult
	switch {
	case opts.Motion:
		video, err = p.assets.GenerateMotion(ctx, img, base+"_video.mp4")
	case opts.StaticVideo:
		video, err = p.assets.RenderStatic(ctx, img, base+"_video.mp4")
	}
	if err != nil {
		errs = append(errs, "video: "+err.Error())
	}
	return img, video, errs
}

func (p *Pipeline) voiceover(ctx context.Context, scene story.Scene, dest string) (*story.AssetResult, error) {
	if p.voice == nil {
		return nil, fmt.Errorf("voiceover: %w: synthesizer is not configured", ErrNoAudio)
	}
	audio, err := p.voice.Synthesize(ctx, scene.Dialog, tts.VoiceFor(scene.Character.Role))
	if err != nil {
		return nil, fmt.Errorf("voiceover: %w: %v", ErrNoAudio, err)
	}
	if err := writeFileAtomic(dest, audio); err != nil {
		return nil, fmt.Errorf("voiceover: %w", err)
	}
	return &story.AssetResult{AssetPath: dest}, nil
}

// SceneBaseName 场景文件名前缀，按 (关键帧, 场景) 编号保证不冲突
func SceneBaseName(keyframe, scene int) string {
	return fmt.Sprintf("keyframe_%d_scene_%d", keyframe, scene)
}
