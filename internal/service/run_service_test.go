package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/config"
	"storyreel/internal/model/run"
	"storyreel/internal/model/story"
	"storyreel/internal/pkg/storage/local"
	runrepo "storyreel/internal/repository/run"
	storysvc "storyreel/internal/service/story"
)

type stubRunner struct {
	err  error
	seen storysvc.Request
}

func (s *stubRunner) Run(ctx context.Context, req storysvc.Request) (*story.StoryResult, error) {
	s.seen = req
	if s.err != nil {
		return nil, s.err
	}
	req.Options.OnStage(storysvc.StageScript)
	sc := story.SceneResult{KeyframeIndex: 1, SceneIndex: 1, Scene: story.Scene{Title: "t", Description: "d", Dialog: "x"}}
	failed := sc
	failed.KeyframeIndex = 2
	failed.Errors = []string{"image: boom"}
	req.Options.OnScene(sc)
	req.Options.OnScene(failed)
	req.Options.OnStage(storysvc.StageDone)
	return &story.StoryResult{
		RunID:    req.RunID,
		Keywords: req.Keywords,
		Script:   story.Script{Original: "s"},
		Keyframes: []story.KeyframeResult{
			{Index: 1, Scenes: []story.SceneResult{sc}},
			{Index: 2, Scenes: []story.SceneResult{failed}},
		},
	}, nil
}

func factoryFor(r *stubRunner, factoryErr error) RunnerFactory {
	return func(ctx context.Context, f Features) (StoryRunner, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return r, nil
	}
}

func defaultsIn(dir string) config.StoryConfig {
	return config.StoryConfig{KeyframeCount: 4, SceneMode: config.SceneModeSingle, ImageAttempts: 3, OutputDir: dir}
}

func TestRunService(t *testing.T) {
	Convey("异步运行", t, func() {
		ctx := context.Background()
		out := t.TempDir()
		repo := runrepo.NewMemoryRepo()

		Convey("成功运行写出文件并镜像", func() {
			mirror, err := local.NewLocalStorage(t.TempDir(), "http://files")
			So(err, ShouldBeNil)
			runner := &stubRunner{}
			svc := NewRunService(ctx, repo, factoryFor(runner, nil), mirror, defaultsIn(out))

			runID, err := svc.CreateRun(ctx, CreateRunInput{Keywords: []string{" lighthouse ", ""}, KeyframeCount: 2})
			So(err, ShouldBeNil)
			svc.Wait()

			rec, err := svc.GetRun(ctx, runID)
			So(err, ShouldBeNil)
			So(rec.Status, ShouldEqual, run.StatusCompleted)
			So(rec.CurrentStage, ShouldEqual, storysvc.StageDone)
			So(rec.ScenesDone, ShouldEqual, 2)
			So(rec.ScenesFailed, ShouldEqual, 1)
			So(rec.CompletedAt, ShouldNotBeNil)
			So(rec.Assets, ShouldContainKey, "runs/"+runID+"/story.json")

			So(runner.seen.Keywords, ShouldResemble, []string{"lighthouse"})
			So(runner.seen.Options.KeyframeCount, ShouldEqual, 2)
			So(runner.seen.Options.OutputDir, ShouldEqual, filepath.Join(out, runID))
			_, statErr := os.Stat(filepath.Join(out, runID, "story.json"))
			So(statErr, ShouldBeNil)
		})

		Convey("流水线失败记录错误", func() {
			svc := NewRunService(ctx, repo, factoryFor(&stubRunner{err: errors.New("script stage: llm down")}, nil), nil, defaultsIn(out))
			runID, err := svc.CreateRun(ctx, CreateRunInput{Keywords: []string{"k"}})
			So(err, ShouldBeNil)
			svc.Wait()

			rec, _ := svc.GetRun(ctx, runID)
			So(rec.Status, ShouldEqual, run.StatusFailed)
			So(rec.Error, ShouldContainSubstring, "llm down")
		})

		Convey("缺少凭证同样是运行失败", func() {
			svc := NewRunService(ctx, repo, factoryFor(nil, config.ErrMissingCredential), nil, defaultsIn(out))
			runID, err := svc.CreateRun(ctx, CreateRunInput{Keywords: []string{"k"}, Images: true})
			So(err, ShouldBeNil)
			svc.Wait()
			rec, _ := svc.GetRun(ctx, runID)
			So(rec.Status, ShouldEqual, run.StatusFailed)
		})

		Convey("参数校验", func() {
			svc := NewRunService(ctx, repo, factoryFor(&stubRunner{}, nil), nil, defaultsIn(out))
			for _, in := range []CreateRunInput{
				{},
				{Keywords: []string{"  "}},
				{Keywords: []string{"k"}, KeyframeCount: -1},
				{Keywords: []string{"k"}, SceneMode: "opera"},
				{Keywords: []string{"k"}, Motion: true},
			} {
				_, err := svc.CreateRun(ctx, in)
				So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			}
			res, err := svc.ListRuns(ctx, 1, 20, "")
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 0)
		})
	})
}
