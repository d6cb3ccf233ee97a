package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"storyreel/internal/config"
)

// fakeFFmpeg 写一个记录参数的脚本代替 ffmpeg，body 负责处理最后一个参数（输出路径）
func fakeFFmpeg(t *testing.T, dir, body string) (script, argsFile string) {
	t.Helper()
	argsFile = filepath.Join(dir, "args.txt")
	script = filepath.Join(dir, "ffmpeg.sh")
	content := "#!/bin/sh\n" +
		"if [ \"$1\" = \"-version\" ]; then exit 0; fi\n" +
		"printf '%s\\n' \"$@\" > \"" + argsFile + "\"\n" +
		"for last; do :; done\n" +
		body + "\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script, argsFile
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func leftovers(dir string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, ".*.part*"))
	return matches
}

func TestRenderStaticVideo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("需要 /bin/sh")
	}

	Convey("静态视频兜底渲染", t, func() {
		binDir := t.TempDir()
		outDir := t.TempDir()
		img := filepath.Join(outDir, "keyframe_1_scene_1_image.png")
		So(os.WriteFile(img, []byte("PNG"), 0o644), ShouldBeNil)
		out := filepath.Join(outDir, "keyframe_1_scene_1_video.mp4")
		ctx := context.Background()

		Convey("使用固定的时长、尺寸与帧率", func() {
			script, argsFile := fakeFFmpeg(t, binDir, `printf video > "$last"`)
			c := NewClient(config.FFmpegConfig{FFmpegPath: script})
			So(c.Available(ctx), ShouldBeNil)

			So(c.RenderStaticVideo(ctx, img, out), ShouldBeNil)

			raw, err := os.ReadFile(argsFile)
			So(err, ShouldBeNil)
			args := strings.Split(strings.TrimSpace(string(raw)), "\n")
			So(argAfter(args, "-i"), ShouldEqual, img)
			So(argAfter(args, "-t"), ShouldEqual, "5")
			So(argAfter(args, "-vf"), ShouldStartWith, "scale=512:512")
			So(argAfter(args, "-vf"), ShouldContainSubstring, "pad=512:512")
			So(argAfter(args, "-r"), ShouldEqual, "24")
			So(args[len(args)-1], ShouldEndWith, ".mp4")
			So(args[len(args)-1], ShouldNotEqual, out)

			data, err := os.ReadFile(out)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "video")
			So(leftovers(outDir), ShouldBeEmpty)
		})

		Convey("失败时不留下半成品", func() {
			script, _ := fakeFFmpeg(t, binDir, "printf partial > \"$last\"\nexit 1")
			c := NewClient(config.FFmpegConfig{FFmpegPath: script})

			err := c.RenderStaticVideo(ctx, img, out)
			So(err, ShouldNotBeNil)
			_, statErr := os.Stat(out)
			So(os.IsNotExist(statErr), ShouldBeTrue)
			So(leftovers(outDir), ShouldBeEmpty)
		})

		Convey("没有输出内容也算失败", func() {
			script, _ := fakeFFmpeg(t, binDir, "exit 0")
			c := NewClient(config.FFmpegConfig{FFmpegPath: script})

			So(c.RenderStaticVideo(ctx, img, out), ShouldNotBeNil)
			_, statErr := os.Stat(out)
			So(os.IsNotExist(statErr), ShouldBeTrue)
			So(leftovers(outDir), ShouldBeEmpty)
		})

		Convey("输入图片不存在时不调用 ffmpeg", func() {
			script, argsFile := fakeFFmpeg(t, binDir, `printf video > "$last"`)
			c := NewClient(config.FFmpegConfig{FFmpegPath: script})

			So(c.RenderStaticVideo(ctx, filepath.Join(outDir, "missing.png"), out), ShouldNotBeNil)
			_, statErr := os.Stat(argsFile)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})
	})

	Convey("ffmpeg 不存在时 Available 报错", t, func() {
		c := NewClient(config.FFmpegConfig{FFmpegPath: filepath.Join(t.TempDir(), "no-ffmpeg")})
		So(c.Available(context.Background()), ShouldNotBeNil)
	})
}
