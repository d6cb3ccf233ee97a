package story

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/model/run"
	runrepo "storyreel/internal/repository/run"
	"storyreel/internal/service"
)

type fakeRunService struct {
	created []service.CreateRunInput
	runs    map[string]*run.Run
}

func (f *fakeRunService) CreateRun(ctx context.Context, in service.CreateRunInput) (string, error) {
	if in.SceneMode == "opera" {
		return "", fmt.Errorf("%w: scene_mode", service.ErrInvalidInput)
	}
	f.created = append(f.created, in)
	return "run-new", nil
}

func (f *fakeRunService) GetRun(ctx context.Context, runID string) (*run.Run, error) {
	r, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("find run: %w", runrepo.ErrNotFound)
	}
	return r, nil
}

func (f *fakeRunService) ListRuns(ctx context.Context, page, pageSize int64, status string) (*service.RunListResult, error) {
	var out []*run.Run
	for _, r := range f.runs {
		if status == "" || string(r.Status) == status {
			out = append(out, r)
		}
	}
	return &service.RunListResult{Runs: out, Total: int64(len(out)), Page: page, PageSize: pageSize}, nil
}

func (f *fakeRunService) Wait() {}

func newRouter(svc service.RunService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).Register(r.Group("/api/v1"))
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHandler(t *testing.T) {
	Convey("故事接口", t, func() {
		done := time.Now()
		svc := &fakeRunService{runs: map[string]*run.Run{
			"abc": {ID: "abc", Keywords: []string{"lighthouse"}, Status: run.StatusCompleted, CurrentStage: "done", ScenesDone: 4, CompletedAt: &done},
		}}
		r := newRouter(svc)

		Convey("提交返回 202 与 run_id", func() {
			w, body := do(r, http.MethodPost, "/api/v1/stories", `{"keywords":["lighthouse","storm"],"keyframe_count":2,"voiceover":true}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			data := body["data"].(map[string]any)
			So(data["run_id"], ShouldEqual, "run-new")
			So(len(svc.created), ShouldEqual, 1)
			So(svc.created[0].KeyframeCount, ShouldEqual, 2)
			So(svc.created[0].Voiceover, ShouldBeTrue)
		})

		Convey("缺少关键词返回 400", func() {
			w, _ := do(r, http.MethodPost, "/api/v1/stories", `{"keywords":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			w, _ = do(r, http.MethodPost, "/api/v1/stories", `not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("参数不合法返回 400", func() {
			w, body := do(r, http.MethodPost, "/api/v1/stories", `{"keywords":["k"],"scene_mode":"opera"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, float64(40001))
		})

		Convey("查询运行记录", func() {
			w, body := do(r, http.MethodGet, "/api/v1/stories/abc", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			data := body["data"].(map[string]any)
			So(data["status"], ShouldEqual, "completed")
			So(data["scenes_done"], ShouldEqual, float64(4))
			So(data["completed_at"], ShouldNotBeEmpty)

			w, _ = do(r, http.MethodGet, "/api/v1/stories/missing", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("列表与状态筛选", func() {
			w, body := do(r, http.MethodGet, "/api/v1/stories?status=completed", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			data := body["data"].(map[string]any)
			So(data["total"], ShouldEqual, float64(1))

			_, body = do(r, http.MethodGet, "/api/v1/stories?status=failed", "")
			data = body["data"].(map[string]any)
			So(data["total"], ShouldEqual, float64(0))
			So(data["runs"], ShouldBeEmpty)
		})
	})
}
