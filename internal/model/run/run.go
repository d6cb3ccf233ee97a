package run

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Status 运行状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal 是否已结束
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Settings 一次运行开启的功能
type Settings struct {
	KeyframeCount   int    `bson:"keyframe_count" json:"keyframe_count"`
	SceneMode       string `bson:"scene_mode" json:"scene_mode"`
	Images          bool   `bson:"images" json:"images"`
	Motion          bool   `bson:"motion" json:"motion"`
	StaticVideo     bool   `bson:"static_video" json:"static_video"`
	Voiceover       bool   `bson:"voiceover" json:"voiceover"`
	OptimizePrompts bool   `bson:"optimize_prompts" json:"optimize_prompts"`
	ThreadID        string `bson:"thread_id,omitempty" json:"thread_id,omitempty"`
}

// Run 一次故事生成运行
type Run struct {
	ID           string            `bson:"id" json:"id"`
	Keywords     []string          `bson:"keywords" json:"keywords"`
	Settings     Settings          `bson:"settings" json:"settings"`
	Status       Status            `bson:"status" json:"status"`
	CurrentStage string            `bson:"current_stage,omitempty" json:"current_stage,omitempty"`
	ScenesDone   int               `bson:"scenes_done" json:"scenes_done"`
	ScenesFailed int               `bson:"scenes_failed" json:"scenes_failed"`
	OutputDir    string            `bson:"output_dir" json:"output_dir"`
	Assets       map[string]string `bson:"assets,omitempty" json:"assets,omitempty"` // 镜像后的 key -> URL
	Error        string            `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Collection 返回集合名称
func (r *Run) Collection() string { return "story_runs" }

// EnsureIndexes 创建和维护索引
func (r *Run) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(r.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_status_created"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
