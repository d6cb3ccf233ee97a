package story

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/model/story"
	"storyreel/internal/pkg/leonardo"
	"storyreel/internal/pkg/poller"
)

var instantPoll = poller.Options{
	Interval: time.Millisecond,
	MaxWait:  time.Second,
	Sleep:    func(context.Context, time.Duration) error { return nil },
}

// fakeImages 按提示词决定成败的图片任务
type fakeImages struct {
	mu        sync.Mutex
	prompts   []string
	failFirst int                      // 前 n 次提交失败
	failWhen  func(prompt string) bool // 命中的提示词始终失败
}

func (f *fakeImages) SubmitImage(ctx context.Context, prompt string, style story.VisualStyle) (story.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	n := len(f.prompts)
	if n <= f.failFirst {
		return story.GenerationJob{}, fmt.Errorf("%w: attempt %d", leonardo.ErrRejected, n)
	}
	if f.failWhen != nil && f.failWhen(prompt) {
		return story.GenerationJob{}, leonardo.ErrRejected
	}
	return story.GenerationJob{ID: fmt.Sprintf("job-%d", n), Kind: story.JobKindImage}, nil
}

func (f *fakeImages) ImageStatus(ctx context.Context, jobID string) (poller.Snapshot[leonardo.ImageAsset], error) {
	return poller.Snapshot[leonardo.ImageAsset]{
		Status:  story.JobStatusComplete,
		Payload: leonardo.ImageAsset{URL: "https://cdn.test/" + jobID + ".png", ID: "img-" + jobID},
	}, nil
}

func (f *fakeImages) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// fakeMotion 动图任务
type fakeMotion struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeMotion) SubmitMotion(ctx context.Context, imageID string) (story.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return story.GenerationJob{}, leonardo.ErrRejected
	}
	return story.GenerationJob{ID: "mot-" + imageID, Kind: story.JobKindMotion}, nil
}

func (f *fakeMotion) MotionStatus(ctx context.Context, jobID string) (poller.Snapshot[leonardo.MotionAsset], error) {
	return poller.Snapshot[leonardo.MotionAsset]{
		Status:  story.JobStatusComplete,
		Payload: leonardo.MotionAsset{URL: "https://cdn.test/" + jobID + ".mp4"},
	}, nil
}

// fakeRenderer 静态视频渲染
type fakeRenderer struct {
	mu    sync.Mutex
	calls [][2]string
	fail  bool
}

func (f *fakeRenderer) RenderStaticVideo(ctx context.Context, imagePath, outputPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, [2]string{imagePath, outputPath})
	f.mu.Unlock()
	if f.fail {
		return errors.New("ffmpeg exploded")
	}
	return os.WriteFile(outputPath, []byte("MP4"), 0o644)
}

// fakeSynth 配音
type fakeSynth struct {
	mu     sync.Mutex
	voices []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	return []byte("ID3" + text), nil
}

// fileDownload 把 URL 写入目标文件，代替真实下载
func fileDownload(ctx context.Context, url, dest string) (int64, error) {
	if err := os.WriteFile(dest, []byte(url), 0o644); err != nil {
		return 0, err
	}
	return int64(len(url)), nil
}

// fakeStages 确定性的阶段实现
type fakeStages struct {
	mu            sync.Mutex
	calls         map[string]int
	descriptions  []string
	failStage     string
	optimizeErr   error
	sceneDelay    func(index int) time.Duration
	optimizeInput int
}

var (
	keeper = story.Character{Role: story.RoleElder, Name: "Mara", PhysicalDescription: "grey braid"}
	sailor = story.Character{Role: story.RoleHero, Name: "Finn", PhysicalDescription: "yellow slicker"}
)

func newFakeStages(descriptions ...string) *fakeStages {
	return &fakeStages{calls: map[string]int{}, descriptions: descriptions}
}

func (f *fakeStages) hit(stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[stage]++
	if f.failStage == stage {
		return fmt.Errorf("%s unavailable", stage)
	}
	return nil
}

func (f *fakeStages) count(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

func (f *fakeStages) GenerateScript(ctx context.Context, keywords []string, n int) (string, error) {
	if err := f.hit(StageScript); err != nil {
		return "", err
	}
	return "A tale of " + strings.Join(keywords, " and "), nil
}

func (f *fakeStages) ExtractCharacters(ctx context.Context, script string) (story.Roster, error) {
	if err := f.hit(StageCharacters); err != nil {
		return nil, err
	}
	return story.Roster{story.Narrator(), keeper, sailor}, nil
}

func (f *fakeStages) EnhanceScript(ctx context.Context, script string, roster story.Roster, n int) (string, error) {
	if err := f.hit(StageEnhance); err != nil {
		return "", err
	}
	return script + " (enhanced)", nil
}

func (f *fakeStages) ExtractKeyframes(ctx context.Context, script string, n int, roster story.Roster) ([]story.Keyframe, error) {
	if err := f.hit(StageKeyframes); err != nil {
		return nil, err
	}
	kfs := make([]story.Keyframe, n)
	for i := range kfs {
		desc := fmt.Sprintf("Keyframe %d of %s", i+1, script)
		if i < len(f.descriptions) {
			desc = f.descriptions[i]
		}
		kfs[i] = story.Keyframe{Title: fmt.Sprintf("KF %d", i+1), Description: desc, CharactersInScene: []string{"Mara"}}
	}
	return kfs, nil
}

func (f *fakeStages) DetermineVisualStyle(ctx context.Context, script string) (story.VisualStyle, error) {
	if err := f.hit("style"); err != nil {
		return "", err
	}
	return story.StyleWatercolor, nil
}

func (f *fakeStages) GenerateScenes(ctx context.Context, script string, kf story.Keyframe, roster story.Roster, mode string) ([]story.Scene, error) {
	if err := f.hit(StageScenes); err != nil {
		return nil, err
	}
	var idx int
	fmt.Sscanf(kf.Title, "KF %d", &idx)
	if f.sceneDelay != nil {
		time.Sleep(f.sceneDelay(idx))
	}
	base := story.Scene{Title: kf.Title, Description: kf.Description, CharactersInScene: kf.CharactersInScene}
	if mode != config.SceneModeDialog {
		sc := base
		sc.Character = keeper
		sc.Dialog = "Line for " + kf.Title
		return []story.Scene{sc}, nil
	}
	narration := base
	narration.Character = story.Narrator()
	narration.Dialog = "Narration for " + kf.Title
	line := base
	line.Character = keeper
	if idx%2 == 0 {
		line.Character = sailor
	}
	line.Dialog = "Line for " + kf.Title
	return []story.Scene{narration, line}, nil
}

func (f *fakeStages) OptimizePrompts(ctx context.Context, scenes []story.Scene, roster story.Roster, style story.VisualStyle) ([]string, error) {
	if err := f.hit(StagePrompts); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.optimizeInput = len(scenes)
	f.mu.Unlock()
	if f.optimizeErr != nil {
		return nil, f.optimizeErr
	}
	out := make([]string, len(scenes))
	for i, sc := range scenes {
		out[i] = "optimized " + sc.Title
	}
	return out, nil
}
