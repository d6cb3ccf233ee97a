package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"storyreel/internal/model/story"
)

// WriteOptions 控制可选输出文件
type WriteOptions struct {
	Script     bool // script.txt / enhanced_script.txt
	Characters bool // characters.json
}

// Metadata metadata.json 的内容
type Metadata struct {
	RunID       string            `json:"run_id"`
	Keywords    []string          `json:"keywords"`
	VisualStyle story.VisualStyle `json:"visual_style"`
}

// WriteOutputs 把运行结果写入 dir，返回写入的文件列表
// 资产文件已由流水线落盘，这里只写文本与元数据
func WriteOutputs(dir string, res *story.StoryResult, opts WriteOptions) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var written []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := writeFileAtomic(path, data); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}
	writeJSON := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		return write(name, data)
	}

	if opts.Script {
		if err := write("script.txt", []byte(res.Script.Original)); err != nil {
			return written, err
		}
		if res.Script.Enhanced != "" {
			if err := write("enhanced_script.txt", []byte(res.Script.Enhanced)); err != nil {
				return written, err
			}
		}
	}
	if opts.Characters {
		if err := writeJSON("characters.json", res.Characters); err != nil {
			return written, err
		}
	}
	if err := writeJSON("metadata.json", Metadata{RunID: res.RunID, Keywords: res.Keywords, VisualStyle: res.VisualStyle}); err != nil {
		return written, err
	}

	for _, kf := range res.Keyframes {
		for _, sc := range kf.Scenes {
			base := SceneBaseName(sc.KeyframeIndex, sc.SceneIndex)
			if err := write(base+".txt", []byte(sc.Scene.Description)); err != nil {
				return written, err
			}
			if err := writeJSON(base+".json", sc.Scene.DialogEntry()); err != nil {
				return written, err
			}
		}
	}

	if err := writeJSON("story.json", res); err != nil {
		return written, err
	}
	log.Info().Str("dir", dir).Int("files", len(written)).Msg("输出文件写入完成")
	return written, nil
}

// writeFileAtomic 写临时文件后 rename，避免留下半截文件
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
