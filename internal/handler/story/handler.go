package story

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storyreel/internal/model/run"
	httputil "storyreel/internal/pkg/http"
	runrepo "storyreel/internal/repository/run"
	"storyreel/internal/service"
)

// ErrorResponse 复用通用错误响应
type ErrorResponse = httputil.ErrorResponse

// Handler 故事生成处理器
type Handler struct {
	runService service.RunService
}

// NewHandler 创建处理器
func NewHandler(runService service.RunService) *Handler {
	return &Handler{runService: runService}
}

// Register 注册路由
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/stories", h.CreateStory)
	g.GET("/stories", h.ListStories)
	g.GET("/stories/:id", h.GetStory)
}

// CreateStoryRequest 创建故事请求
type CreateStoryRequest struct {
	Keywords        []string `json:"keywords" binding:"required,min=1"`
	KeyframeCount   int      `json:"keyframe_count,omitempty"`
	SceneMode       string   `json:"scene_mode,omitempty"` // single, dialog
	Images          bool     `json:"images,omitempty"`
	Motion          bool     `json:"motion,omitempty"`
	StaticVideo     bool     `json:"static_video,omitempty"`
	Voiceover       bool     `json:"voiceover,omitempty"`
	OptimizePrompts *bool    `json:"optimize_prompts,omitempty"`
	ThreadID        string   `json:"thread_id,omitempty"`
}

// RunInfo 运行记录 DTO
type RunInfo struct {
	ID           string            `json:"id"`
	Keywords     []string          `json:"keywords"`
	Settings     run.Settings      `json:"settings"`
	Status       string            `json:"status"`
	CurrentStage string            `json:"current_stage,omitempty"`
	ScenesDone   int               `json:"scenes_done"`
	ScenesFailed int               `json:"scenes_failed"`
	Assets       map[string]string `json:"assets,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	CompletedAt  string            `json:"completed_at,omitempty"`
}

func toRunInfo(r *run.Run) RunInfo {
	info := RunInfo{
		ID:           r.ID,
		Keywords:     r.Keywords,
		Settings:     r.Settings,
		Status:       string(r.Status),
		CurrentStage: r.CurrentStage,
		ScenesDone:   r.ScenesDone,
		ScenesFailed: r.ScenesFailed,
		Assets:       r.Assets,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		info.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return info
}

// CreateStory 提交一次异步生成
// POST /api/v1/stories
func (h *Handler) CreateStory(c *gin.Context) {
	var req CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	runID, err := h.runService.CreateRun(c.Request.Context(), service.CreateRunInput{
		Keywords:        req.Keywords,
		KeyframeCount:   req.KeyframeCount,
		SceneMode:       req.SceneMode,
		Images:          req.Images,
		Motion:          req.Motion,
		StaticVideo:     req.StaticVideo,
		Voiceover:       req.Voiceover,
		OptimizePrompts: req.OptimizePrompts,
		ThreadID:        req.ThreadID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeBadRequest, "Invalid request", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Failed to create run", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, httputil.NewSuccessResponse("accepted", gin.H{
		"run_id": runID,
		"status": string(run.StatusPending),
	}))
}

// GetStory 查询运行记录
// GET /api/v1/stories/:id
func (h *Handler) GetStory(c *gin.Context) {
	rec, err := h.runService.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, runrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, httputil.NewErrorResponse(httputil.CodeNotFound, "Run not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Failed to get run", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("success", toRunInfo(rec)))
}

// ListStories 分页查询
// GET /api/v1/stories?page=1&page_size=20&status=completed
func (h *Handler) ListStories(c *gin.Context) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	pageSize, _ := strconv.ParseInt(c.DefaultQuery("page_size", "20"), 10, 64)

	res, err := h.runService.ListRuns(c.Request.Context(), page, pageSize, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Failed to list runs", err.Error()))
		return
	}

	items := make([]RunInfo, 0, len(res.Runs))
	for _, r := range res.Runs {
		items = append(items, toRunInfo(r))
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("success", gin.H{
		"runs":      items,
		"total":     res.Total,
		"page":      res.Page,
		"page_size": res.PageSize,
	}))
}
