package story

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VisualStyle 视觉风格，每次运行选定一次，所有场景共享
type VisualStyle string

const (
	StyleRender3D          VisualStyle = "RENDER_3D"
	StyleAcrylic           VisualStyle = "ACRYLIC"
	StyleAnimeGeneral      VisualStyle = "ANIME_GENERAL"
	StyleCreative          VisualStyle = "CREATIVE"
	StyleDynamic           VisualStyle = "DYNAMIC"
	StyleFashion           VisualStyle = "FASHION"
	StyleGameConcept       VisualStyle = "GAME_CONCEPT"
	StyleGraphicDesign3D   VisualStyle = "GRAPHIC_DESIGN_3D"
	StyleIllustration      VisualStyle = "ILLUSTRATION"
	StyleNone              VisualStyle = "NONE"
	StylePortrait          VisualStyle = "PORTRAIT"
	StylePortraitCinematic VisualStyle = "PORTRAIT_CINEMATIC"
	StyleRayTraced         VisualStyle = "RAY_TRACED"
	StyleStockPhoto        VisualStyle = "STOCK_PHOTO"
	StyleWatercolor        VisualStyle = "WATERCOLOR"
)

// styleUUIDs Leonardo 风格 UUID
var styleUUIDs = map[VisualStyle]string{
	StyleRender3D:          "debdf72a-91a4-467b-bf61-cc02bdeb69c6",
	StyleAcrylic:           "3cbb655a-7ca4-463f-b697-8a03ad67327c",
	StyleAnimeGeneral:      "b2a54a51-230b-4d4f-ad4e-8409bf58645f",
	StyleCreative:          "6fedbf1f-4a17-45ec-84fb-92fe524a29ef",
	StyleDynamic:           "111dc692-d470-4eec-b791-3475abac4c46",
	StyleFashion:           "594c4a08-a522-4e0e-b7ff-e4dac4b6b622",
	StyleGameConcept:       "09d2b5b5-d7c5-4c02-905d-9f84051640f4",
	StyleGraphicDesign3D:   "7d7c2bc5-4b12-4ac3-81a9-630057e9e89f",
	StyleIllustration:      "645e4195-f63d-4715-a3f2-3fb1e6eb8c70",
	StyleNone:              "556c1ee5-ec38-42e8-955a-1e82dad0ffa1",
	StylePortrait:          "8e2bc543-6ee2-45f9-bcd9-594b6ce84dcd",
	StylePortraitCinematic: "4edb03c9-8a26-4041-9d01-f85b5d4abd71",
	StyleRayTraced:         "b504f83c-3326-4947-82e1-7fe9e839ec0f",
	StyleStockPhoto:        "5bdc3f2a-1be6-4d1c-8e77-992a30824a2c",
	StyleWatercolor:        "1db308ce-c7ad-4d10-96fd-592fa6b75cc4",
}

// Styles 风格目录（固定顺序）
var Styles = []VisualStyle{
	StyleRender3D, StyleAcrylic, StyleAnimeGeneral, StyleCreative, StyleDynamic,
	StyleFashion, StyleGameConcept, StyleGraphicDesign3D, StyleIllustration, StyleNone,
	StylePortrait, StylePortraitCinematic, StyleRayTraced, StyleStockPhoto, StyleWatercolor,
}

// ParseVisualStyle 解析风格名，大小写不敏感，接受 render_3d 这类小写写法
func ParseVisualStyle(s string) (VisualStyle, error) {
	v := VisualStyle(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := styleUUIDs[v]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown visual style %q", s)
}

// UUID Leonardo styleUUID
func (v VisualStyle) UUID() string {
	return styleUUIDs[v]
}

// String 返回风格的字符串表示
func (v VisualStyle) String() string {
	return string(v)
}

// UnmarshalJSON 只接受目录内的风格
func (v *VisualStyle) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVisualStyle(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
