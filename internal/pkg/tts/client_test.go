package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/config"
	"storyreel/internal/model/story"
)

func TestVoiceFor(t *testing.T) {
	Convey("角色音色表", t, func() {
		So(VoiceFor(story.RoleNarrator), ShouldEqual, "fable")
		So(VoiceFor(story.RoleFae), ShouldEqual, "shimmer")
		So(VoiceFor(story.RoleVillain), ShouldEqual, "echo")
		So(VoiceFor(story.RoleSage), ShouldEqual, "onyx")
		So(VoiceFor(story.Role("unknown")), ShouldEqual, "fable")
	})
}

func TestSynthesize(t *testing.T) {
	Convey("Synthesize 调用语音接口", t, func() {
		var got speechRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/audio/speech" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			if got.Input == "silence" {
				return
			}
			_, _ = w.Write([]byte("ID3audio"))
		}))
		defer srv.Close()

		c, err := NewClient(config.TTSConfig{APIKey: "k", BaseURL: srv.URL})
		So(err, ShouldBeNil)

		Convey("成功返回音频", func() {
			audio, err := c.Synthesize(context.Background(), "Once upon a time", "nova")
			So(err, ShouldBeNil)
			So(string(audio), ShouldEqual, "ID3audio")
			So(got.Model, ShouldEqual, DefaultModel)
			So(got.Voice, ShouldEqual, "nova")
		})

		Convey("空音频视为失败", func() {
			_, err := c.Synthesize(context.Background(), "silence", "")
			So(err, ShouldEqual, ErrEmptyAudio)
		})

		Convey("空文本直接失败", func() {
			_, err := c.Synthesize(context.Background(), "  ", "nova")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("缺少 key 时无法创建", t, func() {
		_, err := NewClient(config.TTSConfig{})
		So(err, ShouldNotBeNil)
	})
}
