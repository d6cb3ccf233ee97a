package storytools

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON 文本中找不到 JSON
var ErrNoJSON = errors.New("no JSON found in model output")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// CleanJSONContent 清理 LLM 返回的 JSON 内容
// 优先取 markdown 代码块内的内容，否则截取第一个 { 或 [ 到最后一个对应的闭合符号
func CleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	if m := fencedBlock.FindStringSubmatch(content); len(m) > 1 {
		content = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return content
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return content[start:]
	}
	return content[start : end+1]
}

// DecodeJSON 从模型输出中提取 JSON 并解码到 out
func DecodeJSON(content string, out any) error {
	cleaned := CleanJSONContent(content)
	if cleaned == "" || !strings.ContainsAny(cleaned[:1], "{[") {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}
