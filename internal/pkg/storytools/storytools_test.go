package storytools

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseNumberedList(t *testing.T) {
	Convey("ParseNumberedList 解析编号列表", t, func() {
		Convey("正常列表，忽略前言并合并续行", func() {
			text := `Here are the prompts:
1: A lighthouse on a cliff,
   storm clouds gathering
2: The keeper lights the lamp
3: Dawn over calm sea`
			got, err := ParseNumberedList(text, 3)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{
				"A lighthouse on a cliff, storm clouds gathering",
				"The keeper lights the lamp",
				"Dawn over calm sea",
			})
		})

		Convey("缺号报错", func() {
			_, err := ParseNumberedList("1: a\n3: c", 0)
			So(errors.Is(err, ErrMalformedList), ShouldBeTrue)
		})

		Convey("乱序报错", func() {
			_, err := ParseNumberedList("1: a\n2: b\n2: again", 0)
			So(errors.Is(err, ErrMalformedList), ShouldBeTrue)
		})

		Convey("不从 1 开始报错", func() {
			_, err := ParseNumberedList("0: a\n1: b", 0)
			So(errors.Is(err, ErrMalformedList), ShouldBeTrue)
		})

		Convey("数量不符报错", func() {
			_, err := ParseNumberedList("1: a\n2: b", 3)
			So(errors.Is(err, ErrMalformedList), ShouldBeTrue)
		})

		Convey("没有编号行报错", func() {
			_, err := ParseNumberedList("nothing here", 0)
			So(errors.Is(err, ErrMalformedList), ShouldBeTrue)
		})

		Convey("空条目报错", func() {
			_, err := ParseNumberedList("1: a\n2:\n3: c", 3)
			So(errors.Is(err, ErrMalformedList), ShouldBeTrue)
		})
	})
}

func TestDecodeJSON(t *testing.T) {
	Convey("DecodeJSON 提取模型输出中的 JSON", t, func() {
		var out struct {
			Style string `json:"style"`
		}

		Convey("markdown 代码块", func() {
			err := DecodeJSON("Sure!\n```json\n{\"style\": \"WATERCOLOR\"}\n```\nEnjoy.", &out)
			So(err, ShouldBeNil)
			So(out.Style, ShouldEqual, "WATERCOLOR")
		})

		Convey("前后带说明文字", func() {
			err := DecodeJSON(`The answer is {"style": "NONE"} as requested.`, &out)
			So(err, ShouldBeNil)
			So(out.Style, ShouldEqual, "NONE")
		})

		Convey("数组", func() {
			var list []int
			So(DecodeJSON("[1, 2, 3]", &list), ShouldBeNil)
			So(list, ShouldResemble, []int{1, 2, 3})
		})

		Convey("没有 JSON", func() {
			So(DecodeJSON("no json at all", &out), ShouldEqual, ErrNoJSON)
		})

		Convey("JSON 损坏", func() {
			err := DecodeJSON(`{"style": `, &out)
			So(err, ShouldNotBeNil)
		})
	})
}
