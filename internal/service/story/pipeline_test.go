package story

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/config"
	"storyreel/internal/model/story"
	"storyreel/internal/pkg/cache"
)

func baseOptions(n int) Options {
	return Options{KeyframeCount: n, SceneMode: config.SceneModeSingle}
}

func TestPipeline_TextOnly(t *testing.T) {
	Convey("只生成文本：lighthouse / storm，两个关键帧", t, func() {
		stages := newFakeStages()
		p := NewPipeline(stages, nil, nil, nil)

		res, err := p.Run(context.Background(), Request{
			RunID:    "run-1",
			Keywords: []string{"lighthouse", "storm"},
			Options:  baseOptions(2),
		})
		So(err, ShouldBeNil)
		So(len(res.Keyframes), ShouldEqual, 2)
		So(res.Script.Original, ShouldEqual, "A tale of lighthouse and storm")
		So(res.Script.Enhanced, ShouldEndWith, "(enhanced)")

		for i, kf := range res.Keyframes {
			So(kf.Index, ShouldEqual, i+1)
			So(kf.Description(), ShouldNotBeEmpty)
			So(kf.VisualStyle, ShouldEqual, res.VisualStyle)
			So(len(kf.Scenes), ShouldEqual, 1)
			d := kf.Scenes[0].Scene.DialogEntry()
			So(d.Text, ShouldNotBeEmpty)
			So(story.Roles, ShouldContain, d.Character.Role)
			So(kf.Scenes[0].Image, ShouldBeNil)
			So(kf.Scenes[0].Voiceover, ShouldBeNil)
		}
		So(res.Keyframes[0].VisualStyle, ShouldEqual, res.Keyframes[1].VisualStyle)
		So(stages.count(StagePrompts), ShouldEqual, 0)
	})
}

func TestPipeline_OrderPreserved(t *testing.T) {
	Convey("关键帧结果按位置与输入对应，与完成顺序无关", t, func() {
		for _, n := range []int{1, 3, 6} {
			stages := newFakeStages()
			// 编号越小完成越晚
			stages.sceneDelay = func(idx int) time.Duration { return time.Duration(n-idx) * 3 * time.Millisecond }
			p := NewPipeline(stages, nil, nil, nil)

			res, err := p.Run(context.Background(), Request{RunID: "r", Keywords: []string{"k"}, Options: baseOptions(n)})
			So(err, ShouldBeNil)
			So(len(res.Keyframes), ShouldEqual, n)
			for i, kf := range res.Keyframes {
				So(kf.Keyframe.Title, ShouldEqual, "KF "+strconv.Itoa(i+1))
				So(kf.Scenes[0].Scene.Title, ShouldEqual, kf.Keyframe.Title)
				So(kf.Scenes[0].KeyframeIndex, ShouldEqual, i+1)
			}
		}
	})
}

func TestPipeline_ScopedFailure(t *testing.T) {
	Convey("一个场景图片失败不影响其他场景", t, func() {
		dir := t.TempDir()
		stages := newFakeStages("Dawn at the lighthouse", "Storm hits the cliff", "Calm after the storm")
		images := &fakeImages{failWhen: func(p string) bool { return strings.HasPrefix(p, "Storm hits") }}
		renderer := &fakeRenderer{}
		synth := &fakeSynth{}
		assets := NewAssetController(images, &fakeMotion{fail: true}, renderer, fileDownload,
			RetryPolicy{ImageAttempts: 3, QualitySuffix: " hq"}, instantPoll)
		p := NewPipeline(stages, assets, synth, nil)

		var mu sync.Mutex
		var done []story.SceneResult
		opts := baseOptions(3)
		opts.Images, opts.Motion, opts.Voiceover = true, true, true
		opts.OutputDir = dir
		opts.OnScene = func(r story.SceneResult) {
			mu.Lock()
			done = append(done, r)
			mu.Unlock()
		}

		res, err := p.Run(context.Background(), Request{RunID: "r", Keywords: []string{"lighthouse"}, Options: opts})
		So(err, ShouldBeNil)
		So(len(done), ShouldEqual, 3)

		for _, k := range []int{0, 2} {
			sc := res.Keyframes[k].Scenes[0]
			So(sc.Errors, ShouldBeEmpty)
			So(sc.Image, ShouldNotBeNil)
			So(sc.Video, ShouldNotBeNil)
			So(sc.Video.Static, ShouldBeTrue)
			So(sc.Voiceover, ShouldNotBeNil)
			_, statErr := os.Stat(sc.Voiceover.AssetPath)
			So(statErr, ShouldBeNil)
		}

		failed := res.Keyframes[1].Scenes[0]
		So(failed.Image, ShouldBeNil)
		So(failed.Video, ShouldBeNil)
		So(failed.Voiceover, ShouldNotBeNil)
		So(len(failed.Errors), ShouldEqual, 2)
		So(res.FailedScenes(), ShouldEqual, 1)

		storm := 0
		for _, pr := range images.submitted() {
			if strings.HasPrefix(pr, "Storm hits") {
				storm++
			}
		}
		So(storm, ShouldEqual, 3)
		So(len(renderer.calls), ShouldEqual, 2)
		So(synth.voices, ShouldContain, "onyx")
	})
}

func TestPipeline_FatalStages(t *testing.T) {
	Convey("前置阶段失败是致命错误", t, func() {
		for _, stage := range []string{StageScript, StageCharacters, StageEnhance, StageKeyframes, "style", StageScenes} {
			stages := newFakeStages()
			stages.failStage = stage
			p := NewPipeline(stages, nil, nil, nil)
			res, err := p.Run(context.Background(), Request{RunID: "r", Keywords: []string{"k"}, Options: baseOptions(2)})
			So(res, ShouldBeNil)
			So(err, ShouldNotBeNil)
		}
	})

	Convey("参数校验", t, func() {
		p := NewPipeline(newFakeStages(), nil, nil, nil)
		_, err := p.Run(context.Background(), Request{Keywords: nil, Options: baseOptions(2)})
		So(err, ShouldNotBeNil)

		opts := baseOptions(2)
		opts.Motion = true
		_, err = p.Run(context.Background(), Request{Keywords: []string{"k"}, Options: opts})
		So(err, ShouldNotBeNil)

		opts = baseOptions(0)
		_, err = p.Run(context.Background(), Request{Keywords: []string{"k"}, Options: opts})
		So(err, ShouldNotBeNil)
	})
}

func TestPipeline_DialogMode(t *testing.T) {
	Convey("旁白加对白模式", t, func() {
		stages := newFakeStages()
		p := NewPipeline(stages, nil, nil, nil)
		opts := baseOptions(3)
		opts.SceneMode = config.SceneModeDialog
		opts.OptimizePrompts = true

		res, err := p.Run(context.Background(), Request{RunID: "r", Keywords: []string{"k"}, Options: opts})
		So(err, ShouldBeNil)

		Convey("每个关键帧先旁白再对白", func() {
			for _, kf := range res.Keyframes {
				So(len(kf.Scenes), ShouldEqual, 2)
				So(kf.Scenes[0].Scene.Character.Role, ShouldEqual, story.RoleNarrator)
				So(kf.Scenes[1].SceneIndex, ShouldEqual, 2)
			}
		})

		Convey("首次出场的角色被标记", func() {
			// KF1: Mara, KF2: Finn, KF3: Mara
			So(res.Keyframes[0].Scenes[1].Scene.Introduces, ShouldBeTrue)
			So(res.Keyframes[1].Scenes[1].Scene.Introduces, ShouldBeTrue)
			So(res.Keyframes[2].Scenes[1].Scene.Introduces, ShouldBeFalse)
			So(res.Keyframes[0].Scenes[0].Scene.Introduces, ShouldBeFalse)
		})

		Convey("提示词优化拿到全部场景并写回", func() {
			So(stages.optimizeInput, ShouldEqual, 6)
			for _, kf := range res.Keyframes {
				for _, sc := range kf.Scenes {
					So(sc.Scene.LeonardoPrompt, ShouldEqual, "optimized "+kf.Keyframe.Title)
					So(sc.Scene.EffectivePrompt(), ShouldEqual, sc.Scene.LeonardoPrompt)
				}
			}
		})
	})

	Convey("提示词优化失败时保留原始描述", t, func() {
		stages := newFakeStages()
		stages.optimizeErr = errors.New("malformed")
		p := NewPipeline(stages, nil, nil, nil)
		opts := baseOptions(2)
		opts.OptimizePrompts = true

		res, err := p.Run(context.Background(), Request{RunID: "r", Keywords: []string{"k"}, Options: opts})
		So(err, ShouldBeNil)
		sc := res.Keyframes[0].Scenes[0].Scene
		So(sc.LeonardoPrompt, ShouldBeEmpty)
		So(sc.EffectivePrompt(), ShouldEqual, sc.Description)
	})
}

func TestPipeline_Checkpoint(t *testing.T) {
	Convey("相同 thread id 与关键词复用前置阶段", t, func() {
		cp := NewCheckpointer(cache.NewMemoryCache(time.Hour, time.Hour), time.Hour)
		stages := newFakeStages()
		p := NewPipeline(stages, nil, nil, cp)
		opts := baseOptions(2)
		opts.ThreadID = "thread-a"

		var seen []string
		opts.OnStage = func(s string) { seen = append(seen, s) }

		first, err := p.Run(context.Background(), Request{RunID: "r1", Keywords: []string{"lighthouse"}, Options: opts})
		So(err, ShouldBeNil)
		So(seen[0], ShouldEqual, StageScript)

		seen = nil
		second, err := p.Run(context.Background(), Request{RunID: "r2", Keywords: []string{"lighthouse"}, Options: opts})
		So(err, ShouldBeNil)
		So(stages.count(StageScript), ShouldEqual, 1)
		So(seen[0], ShouldEqual, StageScenes)
		So(second.Script, ShouldResemble, first.Script)

		Convey("关键词不同则重新生成", func() {
			_, err := p.Run(context.Background(), Request{RunID: "r3", Keywords: []string{"forest"}, Options: opts})
			So(err, ShouldBeNil)
			So(stages.count(StageScript), ShouldEqual, 2)
		})
	})
}

func TestMarkIntroductions(t *testing.T) {
	Convey("出场标记以关键帧为单位", t, func() {
		scene := func(c story.Character) story.SceneResult {
			return story.SceneResult{Scene: story.Scene{Character: c}}
		}
		kfs := []story.KeyframeResult{
			{Index: 1, Scenes: []story.SceneResult{scene(story.Narrator()), scene(keeper), scene(keeper)}},
			{Index: 2, Scenes: []story.SceneResult{scene(story.Narrator()), scene(keeper), scene(sailor)}},
		}
		markIntroductions(kfs)

		Convey("首个关键帧内同一角色的每句都算首次出场", func() {
			So(kfs[0].Scenes[1].Scene.Introduces, ShouldBeTrue)
			So(kfs[0].Scenes[2].Scene.Introduces, ShouldBeTrue)
		})

		Convey("之前关键帧出现过的角色不再标记", func() {
			So(kfs[1].Scenes[1].Scene.Introduces, ShouldBeFalse)
			So(kfs[1].Scenes[2].Scene.Introduces, ShouldBeTrue)
		})

		Convey("旁白从不标记", func() {
			So(kfs[0].Scenes[0].Scene.Introduces, ShouldBeFalse)
			So(kfs[1].Scenes[0].Scene.Introduces, ShouldBeFalse)
		})
	})
}
