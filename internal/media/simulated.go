package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"repost/internal/config"
	"repost/internal/ledger"
	"repost/internal/services"
)

// simulatedTransformer copies media through unchanged and composes a real
// thumbnail, so the rest of the pipeline behaves exactly as in ffmpeg mode
// without the external tool.
type simulatedTransformer struct {
	fontFile string
	outDir   string
	thumbDir string
}

func newSimulatedTransformer(cfg *config.Config) *simulatedTransformer {
	return &simulatedTransformer{
		fontFile: cfg.Transform.FontFile,
		outDir:   cfg.TransformDir(),
		thumbDir: cfg.ThumbnailDir(),
	}
}

func (t *simulatedTransformer) Transform(ctx context.Context, item *ledger.Item) (Output, error) {
	if strings.TrimSpace(item.MediaPath) == "" {
		return Output{}, services.Wrap(services.ErrValidation, "transform", "input", "item has no downloaded media", nil)
	}
	if err := os.MkdirAll(t.outDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("ensure transform dir: %w", err)
	}

	videoPath := filepath.Join(t.outDir, item.SourceID+filepath.Ext(item.MediaPath))
	if err := copyFile(item.MediaPath, videoPath); err != nil {
		return Output{}, services.Wrap(services.ErrTransient, "transform", "copy", "copying media", err)
	}

	frame := t.frameFor(item.MediaPath)
	thumbPath, err := WriteThumbnail(frame, item.Author, t.fontFile, t.thumbDir, item.SourceID)
	if err != nil {
		return Output{}, err
	}
	return Output{VideoPath: videoPath, ThumbnailPath: thumbPath}, nil
}

// frameFor decodes image media directly; for video files it synthesizes a
// frame from the file bytes so identical inputs keep identical fingerprints.
func (t *simulatedTransformer) frameFor(mediaPath string) image.Image {
	if img, err := imaging.Open(mediaPath); err == nil {
		return img
	}

	data, err := os.ReadFile(mediaPath)
	if err != nil {
		data = []byte(mediaPath)
	}
	const side = 64
	img := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.SetGray(x, y, color.Gray{Y: data[(y*side+x)%len(data)]})
		}
	}
	return img
}

func (t *simulatedTransformer) Healthy(ctx context.Context) error {
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
