package story

import (
	"context"
	"errors"
	"slices"
	"time"

	"storyreel/internal/model/story"
	"storyreel/internal/pkg/cache"
)

const checkpointKeyPrefix = "storyreel:checkpoint:"

// Prelude 扇出前各阶段（剧本到风格）的结果，按 thread id 保存一份
type Prelude struct {
	Keywords      []string          `json:"keywords"`
	KeyframeCount int               `json:"keyframe_count"`
	Script        story.Script      `json:"script"`
	Characters    story.Roster      `json:"characters"`
	Keyframes     []story.Keyframe  `json:"keyframes"`
	VisualStyle   story.VisualStyle `json:"visual_style"`
}

// matches 关键词与关键帧数量一致才可复用
func (p *Prelude) matches(keywords []string, keyframeCount int) bool {
	return p.KeyframeCount == keyframeCount && slices.Equal(p.Keywords, keywords)
}

// Checkpointer 检查点存取，每个 thread id 只保存一份
type Checkpointer struct {
	store cache.Store
	ttl   time.Duration
}

// NewCheckpointer 基于缓存创建检查点
func NewCheckpointer(store cache.Store, ttl time.Duration) *Checkpointer {
	return &Checkpointer{store: store, ttl: ttl}
}

// Load 读取检查点，不存在或不匹配时返回 nil
func (c *Checkpointer) Load(ctx context.Context, threadID string, keywords []string, keyframeCount int) (*Prelude, error) {
	if c == nil || threadID == "" {
		return nil, nil
	}
	var p Prelude
	err := c.store.Get(ctx, checkpointKeyPrefix+threadID, &p)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !p.matches(keywords, keyframeCount) {
		return nil, nil
	}
	return &p, nil
}

// Save 覆盖保存检查点
func (c *Checkpointer) Save(ctx context.Context, threadID string, p *Prelude) error {
	if c == nil || threadID == "" {
		return nil
	}
	return c.store.Set(ctx, checkpointKeyPrefix+threadID, p, c.ttl)
}
