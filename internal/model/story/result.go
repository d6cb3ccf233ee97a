package story

// AssetResult 所有生成调用统一的结果形态，字段均可为空
type AssetResult struct {
	AssetPath       string `json:"asset_path,omitempty"`        // 落盘路径
	JobID           string `json:"job_id,omitempty"`            // 外部任务ID
	ExternalAssetID string `json:"external_asset_id,omitempty"` // 外部资产ID（图片ID，可用于提交动图任务）
	Static          bool   `json:"static,omitempty"`            // 视频是否由静态图兜底渲染
}

// Empty 是否没有产物
func (r *AssetResult) Empty() bool {
	return r == nil || r.AssetPath == ""
}

// SceneResult 单个场景的产物
// 任一产物失败只影响该字段，对应的 Errors 记录原因
type SceneResult struct {
	KeyframeIndex int          `json:"keyframe_index"`
	SceneIndex    int          `json:"scene_index"`
	Scene         Scene        `json:"scene"`
	Image         *AssetResult `json:"image,omitempty"`
	Video         *AssetResult `json:"video,omitempty"`
	Voiceover     *AssetResult `json:"voiceover,omitempty"`
	Errors        []string     `json:"errors,omitempty"`
}

// KeyframeResult 关键帧结果，与输入关键帧按位置一一对应
type KeyframeResult struct {
	Index       int           `json:"index"`
	Keyframe    Keyframe      `json:"keyframe"`
	VisualStyle VisualStyle   `json:"visual_style"`
	Scenes      []SceneResult `json:"scenes"`
}

// Description 关键帧描述
func (k *KeyframeResult) Description() string {
	return k.Keyframe.Description
}

// StoryResult 一次运行的完整输出
type StoryResult struct {
	RunID       string           `json:"run_id"`
	Keywords    []string         `json:"keywords"`
	Script      Script           `json:"script"`
	Characters  Roster           `json:"characters"`
	VisualStyle VisualStyle      `json:"visual_style"`
	Keyframes   []KeyframeResult `json:"keyframes"`
}

// FailedScenes 统计存在产物失败的场景数
func (r *StoryResult) FailedScenes() int {
	n := 0
	for _, kf := range r.Keyframes {
		for _, sc := range kf.Scenes {
			if len(sc.Errors) > 0 {
				n++
			}
		}
	}
	return n
}
