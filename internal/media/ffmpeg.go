package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"repost/internal/config"
	"repost/internal/ledger"
	"repost/internal/services"
)

// ffmpegTransformer shells out to ffmpeg to rescale media into the vertical
// target frame, optionally stitching configured intro and outro clips.
type ffmpegTransformer struct {
	binary    string
	width     int
	height    int
	introFile string
	outroFile string
	fontFile  string
	timeout   time.Duration
	outDir    string
	thumbDir  string
}

func newFFmpegTransformer(cfg *config.Config) *ffmpegTransformer {
	timeout := time.Duration(cfg.Transform.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	binary := strings.TrimSpace(cfg.Transform.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegTransformer{
		binary:    binary,
		width:     cfg.Transform.TargetWidth,
		height:    cfg.Transform.TargetHeight,
		introFile: cfg.Transform.IntroFile,
		outroFile: cfg.Transform.OutroFile,
		fontFile:  cfg.Transform.FontFile,
		timeout:   timeout,
		outDir:    cfg.TransformDir(),
		thumbDir:  cfg.ThumbnailDir(),
	}
}

func (t *ffmpegTransformer) Transform(ctx context.Context, item *ledger.Item) (Output, error) {
	if strings.TrimSpace(item.MediaPath) == "" {
		return Output{}, services.Wrap(services.ErrValidation, "transform", "input", "item has no downloaded media", nil)
	}
	if err := os.MkdirAll(t.outDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("ensure transform dir: %w", err)
	}

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	videoPath := filepath.Join(t.outDir, item.SourceID+".mp4")
	if err := t.run(runCtx, t.encodeArgs(item.MediaPath, videoPath)); err != nil {
		return Output{}, err
	}

	framePath := filepath.Join(t.outDir, item.SourceID+".frame.png")
	if err := t.run(runCtx, []string{"-y", "-i", videoPath, "-vframes", "1", "-ss", "0", framePath}); err != nil {
		return Output{}, err
	}
	defer os.Remove(framePath)

	frame, err := imaging.Open(framePath)
	if err != nil {
		return Output{}, fmt.Errorf("open extracted frame: %w", err)
	}
	thumbPath, err := WriteThumbnail(frame, item.Author, t.fontFile, t.thumbDir, item.SourceID)
	if err != nil {
		return Output{}, err
	}

	return Output{VideoPath: videoPath, ThumbnailPath: thumbPath}, nil
}

// encodeArgs rescales into the target frame, padding to preserve aspect
// ratio, and concatenates intro/outro clips when configured.
func (t *ffmpegTransformer) encodeArgs(input, output string) []string {
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=30",
		t.width, t.height, t.width, t.height,
	)

	inputs := []string{}
	if t.introFile != "" {
		inputs = append(inputs, t.introFile)
	}
	inputs = append(inputs, input)
	if t.outroFile != "" {
		inputs = append(inputs, t.outroFile)
	}

	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	if len(inputs) == 1 {
		args = append(args,
			"-vf", scale,
			"-c:v", "libx264", "-preset", "medium", "-crf", "23",
			"-c:a", "aac", "-b:a", "128k",
			"-movflags", "+faststart",
			output,
		)
		return args
	}

	var filter strings.Builder
	for i := range inputs {
		fmt.Fprintf(&filter, "[%d:v]%s[v%d];", i, scale, i)
	}
	for i := range inputs {
		fmt.Fprintf(&filter, "[v%d][%d:a]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", len(inputs))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[outv]", "-map", "[outa]",
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		output,
	)
	return args
}

func (t *ffmpegTransformer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTransient, "transform", "ffmpeg", "encode timed out", ctx.Err())
		}
		detail := lastLines(stderr.String(), 5)
		return services.Wrap(services.ErrTransient, "transform", "ffmpeg", detail, err)
	}
	return nil
}

func (t *ffmpegTransformer) Healthy(ctx context.Context) error {
	if _, err := exec.LookPath(t.binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", t.binary, err)
	}
	return nil
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
