package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyreel/internal/model/story"
	"storyreel/internal/pkg/id"
	"storyreel/internal/service"
	storysvc "storyreel/internal/service/story"
)

var generateFlags struct {
	characters  bool
	script      bool
	images      bool
	motion      bool
	staticVideo bool
	voiceover   bool
	threadID    string
}

var generateCmd = &cobra.Command{
	Use:   "generate <keyword> [keyword...]",
	Short: "Generate a story from keywords",
	Long: `Generate a story from keywords and write it to the output directory.
Per-scene asset failures are reported but do not fail the command;
a failed script, character, keyframe or scene stage does.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	flags := generateCmd.Flags()
	flags.BoolVar(&generateFlags.characters, "characters", false, "write characters.json")
	flags.BoolVar(&generateFlags.script, "script", false, "write script.txt and enhanced_script.txt")
	flags.BoolVar(&generateFlags.images, "images", false, "generate one image per scene")
	flags.BoolVar(&generateFlags.motion, "motion", false, "animate scene images (falls back to a static video)")
	flags.BoolVar(&generateFlags.staticVideo, "static-video", false, "render a static video per scene image")
	flags.BoolVar(&generateFlags.voiceover, "voiceover", false, "synthesize a voiceover per scene")
	flags.StringVar(&generateFlags.threadID, "thread-id", "", "checkpoint name; reruns with the same keywords reuse the script stages")

	flags.IntP("keyframes", "k", 4, "number of keyframes")
	flags.StringP("output-dir", "o", "output", "output directory")
	flags.String("scene-mode", "single", "scene mode (single/dialog)")
	flags.Bool("optimize-prompts", false, "rewrite scene descriptions into image prompts")
	flags.Int("fanout-limit", 0, "max concurrent units per fan-out, 0 for unbounded")

	_ = viper.BindPFlag("story.keyframe_count", flags.Lookup("keyframes"))
	_ = viper.BindPFlag("story.output_dir", flags.Lookup("output-dir"))
	_ = viper.BindPFlag("story.scene_mode", flags.Lookup("scene-mode"))
	_ = viper.BindPFlag("story.optimize_prompts", flags.Lookup("optimize-prompts"))
	_ = viper.BindPFlag("story.fanout_limit", flags.Lookup("fanout-limit"))
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Story.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	f := service.Features{
		Images:      generateFlags.images,
		Motion:      generateFlags.motion,
		StaticVideo: generateFlags.staticVideo,
		Voiceover:   generateFlags.voiceover,
	}
	if (f.Motion || f.StaticVideo) && !f.Images {
		return fmt.Errorf("--motion and --static-video require --images")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := service.NewCheckpointStore(cfg)
	defer closeStore()
	if err != nil {
		return err
	}
	pipeline, err := service.NewStoryPipeline(ctx, cfg, f, service.NewCheckpointer(cfg, store))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	status := &statusPrinter{w: out}
	opts := service.StoryOptions(cfg.Story, f)
	opts.ThreadID = generateFlags.threadID
	opts.OnStage = status.stage
	opts.OnScene = status.scene

	runID := id.NewRunID()
	log.Info().Str("run_id", runID).Strs("keywords", args).Msg("开始生成")
	res, err := pipeline.Run(ctx, storysvc.Request{RunID: runID, Keywords: args, Options: opts})
	if err != nil {
		return err
	}

	files, err := storysvc.WriteOutputs(opts.OutputDir, res, storysvc.WriteOptions{
		Script:     generateFlags.script,
		Characters: generateFlags.characters,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nstyle: %s\n", res.VisualStyle)
	for _, kf := range res.Keyframes {
		fmt.Fprintf(out, "keyframe %d: %s\n", kf.Index, kf.Keyframe.Title)
	}
	fmt.Fprintf(out, "wrote %d files to %s", len(files), opts.OutputDir)
	if n := res.FailedScenes(); n > 0 {
		fmt.Fprintf(out, " (%d scene(s) missing assets)", n)
	}
	fmt.Fprintln(out)
	return nil
}

// statusPrinter 输出进度行，场景回调会并发到达
type statusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *statusPrinter) stage(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "==> %s\n", stage)
}

func (p *statusPrinter) scene(res story.SceneResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark := "ok"
	if len(res.Errors) > 0 {
		mark = "FAILED: " + strings.Join(res.Errors, "; ")
	}
	fmt.Fprintf(p.w, "    keyframe %d scene %d %s\n", res.KeyframeIndex, res.SceneIndex, mark)
}
