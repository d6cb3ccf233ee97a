package story

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role 角色类型（决定配音音色）
type Role string

const (
	RoleNarrator Role = "narrator"
	RoleChild    Role = "child"
	RoleElder    Role = "elder"
	RoleFae      Role = "fae"
	RoleHero     Role = "hero"
	RoleVillain  Role = "villain"
	RoleSage     Role = "sage"
	RoleSidekick Role = "sidekick"
)

// Roles 全部合法角色，顺序即提示词中的枚举顺序
var Roles = []Role{
	RoleNarrator, RoleChild, RoleElder, RoleFae,
	RoleHero, RoleVillain, RoleSage, RoleSidekick,
}

// ParseRole 解析角色，兼容模型常输出的 "fairy"
func ParseRole(s string) (Role, error) {
	v := Role(strings.ToLower(strings.TrimSpace(s)))
	if v == "fairy" {
		return RoleFae, nil
	}
	for _, r := range Roles {
		if r == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown character role %q", s)
}

// String 返回角色的字符串表示
func (r Role) String() string {
	return string(r)
}

// UnmarshalJSON 只接受枚举内的角色
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Character 角色（每次运行创建一次，之后只读）
type Character struct {
	Role                Role   `json:"role"`
	Name                string `json:"name"`
	Backstory           string `json:"backstory"`
	PhysicalDescription string `json:"physical_description"`
	Personality         string `json:"personality"`
}

// Narrator 默认旁白角色，没有角色表时使用
func Narrator() Character {
	return Character{Role: RoleNarrator, Name: "Narrator"}
}

// Roster 本次运行的角色表
type Roster []Character

// Find 按名称查找角色（忽略大小写）
func (r Roster) Find(name string) (Character, bool) {
	for _, c := range r {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Character{}, false
}

// Names 角色名列表
func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// Keyframe 关键帧
type Keyframe struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	CharactersInScene []string `json:"characters_in_scene"`
}

// Dialog 一段台词/旁白，落盘为 keyframe_{k}_scene_{s}.json
type Dialog struct {
	Character Character `json:"character"`
	Text      string    `json:"text"`
}

// Scene 关键帧下的场景
// LeonardoPrompt 仅在提示词优化阶段写入一次，且必须先于任何图片生成
type Scene struct {
	Character         Character `json:"character"`
	Dialog            string    `json:"dialog"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	CharactersInScene []string  `json:"characters_in_scene"`
	LeonardoPrompt    string    `json:"leonardo_prompt,omitempty"`
	Introduces        bool      `json:"introduces,omitempty"` // 角色在本场景首次出场
}

// EffectivePrompt 图片生成实际使用的提示词：优化后的提示词优先，否则用原始描述，二者不拼接
func (s *Scene) EffectivePrompt() string {
	if s.LeonardoPrompt != "" {
		return s.LeonardoPrompt
	}
	return s.Description
}

// DialogEntry 场景的台词对象
func (s *Scene) DialogEntry() Dialog {
	return Dialog{Character: s.Character, Text: s.Dialog}
}

// Script 剧本，增强后的版本只会替代而不会修改原始版本
type Script struct {
	Original string `json:"original"`
	Enhanced string `json:"enhanced,omitempty"`
}

// Latest 返回最新版本的剧本
func (s Script) Latest() string {
	if s.Enhanced != "" {
		return s.Enhanced
	}
	return s.Original
}
