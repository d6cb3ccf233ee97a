package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"storyreel/internal/config"
	"storyreel/internal/model/story"
	"storyreel/internal/pkg/storytools"
)

// Completer 对话补全能力（*ai.Client 实现）
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	CompleteJSON(ctx context.Context, system, prompt string, out any) error
}

// Stages 流水线中依赖 LLM 的各个阶段
type Stages interface {
	GenerateScript(ctx context.Context, keywords []string, keyframeCount int) (string, error)
	ExtractCharacters(ctx context.Context, script string) (story.Roster, error)
	EnhanceScript(ctx context.Context, script string, roster story.Roster, keyframeCount int) (string, error)
	ExtractKeyframes(ctx context.Context, script string, count int, roster story.Roster) ([]story.Keyframe, error)
	DetermineVisualStyle(ctx context.Context, script string) (story.VisualStyle, error)
	GenerateScenes(ctx context.Context, script string, kf story.Keyframe, roster story.Roster, mode string) ([]story.Scene, error)
	// OptimizePrompts 一次性为全部场景生成图片提示词，返回值与 scenes 一一对应
	OptimizePrompts(ctx context.Context, scenes []story.Scene, roster story.Roster, style story.VisualStyle) ([]string, error)
}

// llmStages 基于 Completer 的阶段实现
type llmStages struct {
	llm Completer
}

// NewLLMStages 创建 LLM 阶段实现
func NewLLMStages(llm Completer) Stages {
	return &llmStages{llm: llm}
}

func (s *llmStages) GenerateScript(ctx context.Context, keywords []string, keyframeCount int) (string, error) {
	text, err := s.llm.Complete(ctx, systemScreenwriter, buildScriptPrompt(keywords, keyframeCount))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty script")
	}
	return text, nil
}

// characterJSON LLM 输出的角色，role 宽松解析
type characterJSON struct {
	Role                string `json:"role"`
	Name                string `json:"name"`
	Backstory           string `json:"backstory"`
	PhysicalDescription string `json:"physical_description"`
	Personality         string `json:"personality"`
}

func (s *llmStages) ExtractCharacters(ctx context.Context, script string) (story.Roster, error) {
	var resp struct {
		Characters []characterJSON `json:"characters"`
	}
	if err := s.llm.CompleteJSON(ctx, systemScreenwriter, buildCharactersPrompt(script), &resp); err != nil {
		return nil, err
	}

	roster := make(story.Roster, 0, len(resp.Characters)+1)
	for _, c := range resp.Characters {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, dup := roster.Find(name); dup {
			continue
		}
		role, err := story.ParseRole(c.Role)
		if err != nil {
			return nil, fmt.Errorf("character %q: %w", name, err)
		}
		roster = append(roster, story.Character{
			Role:                role,
			Name:                name,
			Backstory:           c.Backstory,
			PhysicalDescription: c.PhysicalDescription,
			Personality:         c.Personality,
		})
	}
	return withNarrator(roster), nil
}

// withNarrator 保证角色表里有旁白
func withNarrator(roster story.Roster) story.Roster {
	for _, c := range roster {
		if c.Role == story.RoleNarrator {
			return roster
		}
	}
	return append(story.Roster{story.Narrator()}, roster...)
}

func (s *llmStages) EnhanceScript(ctx context.Context, script string, roster story.Roster, keyframeCount int) (string, error) {
	text, err := s.llm.Complete(ctx, systemScreenwriter, buildEnhancePrompt(script, roster, keyframeCount))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty enhanced script")
	}
	return text, nil
}

func (s *llmStages) ExtractKeyframes(ctx context.Context, script string, count int, roster story.Roster) ([]story.Keyframe, error) {
	var resp struct {
		Keyframes []story.Keyframe `json:"keyframes"`
	}
	if err := s.llm.CompleteJSON(ctx, systemScreenwriter, buildKeyframesPrompt(script, count, roster), &resp); err != nil {
		return nil, err
	}
	if len(resp.Keyframes) != count {
		return nil, fmt.Errorf("expected %d keyframes, got %d", count, len(resp.Keyframes))
	}
	for i := range resp.Keyframes {
		kf := &resp.Keyframes[i]
		if strings.TrimSpace(kf.Description) == "" {
			return nil, fmt.Errorf("keyframe %d has no description", i+1)
		}
		kf.CharactersInScene = castMembers(kf.CharactersInScene, roster)
	}
	return resp.Keyframes, nil
}

// castMembers 过滤掉不在角色表中的名字，并统一为角色表中的写法
func castMembers(names []string, roster story.Roster) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if c, ok := roster.Find(n); ok {
			out = append(out, c.Name)
		}
	}
	return out
}

func (s *llmStages) DetermineVisualStyle(ctx context.Context, script string) (story.VisualStyle, error) {
	var resp struct {
		Style story.VisualStyle `json:"style"`
	}
	if err := s.llm.CompleteJSON(ctx, systemScreenwriter, buildStylePrompt(script), &resp); err != nil {
		return "", err
	}
	if resp.Style == "" {
		return "", errors.New("model returned no visual style")
	}
	return resp.Style, nil
}

type lineJSON struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

func (s *llmStages) GenerateScenes(ctx context.Context, script string, kf story.Keyframe, roster story.Roster, mode string) ([]story.Scene, error) {
	var lines []lineJSON
	if mode == config.SceneModeDialog {
		var resp struct {
			Lines []lineJSON `json:"lines"`
		}
		if err := s.llm.CompleteJSON(ctx, systemScreenwriter, buildDialogScenesPrompt(script, kf, roster), &resp); err != nil {
			return nil, err
		}
		lines = resp.Lines
	} else {
		var resp lineJSON
		if err := s.llm.CompleteJSON(ctx, systemScreenwriter, buildSingleScenePrompt(script, kf, roster), &resp); err != nil {
			return nil, err
		}
		lines = []lineJSON{resp}
	}

	scenes := make([]story.Scene, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		scenes = append(scenes, story.Scene{
			Character:         resolveSpeaker(l.Character, roster),
			Dialog:            strings.TrimSpace(l.Text),
			Title:             kf.Title,
			Description:       kf.Description,
			CharactersInScene: kf.CharactersInScene,
		})
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("keyframe %q produced no scenes", kf.Title)
	}
	return scenes, nil
}

// resolveSpeaker 按名称匹配角色表，匹配不到时归给旁白
func resolveSpeaker(name string, roster story.Roster) story.Character {
	if c, ok := roster.Find(name); ok {
		return c
	}
	for _, c := range roster {
		if c.Role == story.RoleNarrator {
			if name != "" && !strings.EqualFold(name, "narrator") {
				log.Warn().Str("speaker", name).Msg("台词角色不在角色表中，归给旁白")
			}
			return c
		}
	}
	return story.Narrator()
}

func (s *llmStages) OptimizePrompts(ctx context.Context, scenes []story.Scene, roster story.Roster, style story.VisualStyle) ([]string, error) {
	text, err := s.llm.Complete(ctx, systemScreenwriter, buildOptimizePrompt(scenes, roster, style))
	if err != nil {
		return nil, err
	}
	return storytools.ParseNumberedList(text, len(scenes))
}
