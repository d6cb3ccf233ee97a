package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/config"
)

type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestClient(t *testing.T) {
	Convey("AI 客户端", t, func() {
		fake := &fakeChatModel{reply: "```json\n{\"style\":\"ANIME_GENERAL\"}\n```"}
		c := NewClientWithModel("openai", fake)
		ctx := context.Background()

		Convey("Complete 组装 system 与 user 消息", func() {
			text, err := c.Complete(ctx, "you are a director", "pick a style")
			So(err, ShouldBeNil)
			So(text, ShouldContainSubstring, "ANIME_GENERAL")
			So(len(fake.seen), ShouldEqual, 2)
			So(fake.seen[0].Role, ShouldEqual, schema.System)
			So(fake.seen[1].Content, ShouldEqual, "pick a style")
		})

		Convey("没有 system 时只发送 user 消息", func() {
			_, err := c.Complete(ctx, "", "hello")
			So(err, ShouldBeNil)
			So(len(fake.seen), ShouldEqual, 1)
		})

		Convey("CompleteJSON 解码结构化输出", func() {
			var out struct {
				Style string `json:"style"`
			}
			So(c.CompleteJSON(ctx, "", "pick", &out), ShouldBeNil)
			So(out.Style, ShouldEqual, "ANIME_GENERAL")
		})

		Convey("模型错误向上返回", func() {
			fake.err = errors.New("quota exceeded")
			_, err := c.Complete(ctx, "", "hello")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "quota exceeded")
		})
	})

	Convey("缺少 api key", t, func() {
		_, err := NewClient(context.Background(), &config.AIConfig{Provider: "openai"})
		So(errors.Is(err, config.ErrMissingCredential), ShouldBeTrue)
	})
}
