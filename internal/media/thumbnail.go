package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

const (
	thumbnailWidth  = 1280
	thumbnailHeight = 720
	creditFontSize  = 42
)

// ComposeThumbnail fills the frame to 1280x720 and stamps the credit line
// over a darkened band along the bottom edge. With no font configured the
// band is drawn without text.
func ComposeThumbnail(src image.Image, author, fontPath string) (image.Image, error) {
	canvas := imaging.Fill(src, thumbnailWidth, thumbnailHeight, imaging.Center, imaging.Lanczos)

	bandTop := thumbnailHeight - 110
	band := image.Rect(0, bandTop, thumbnailWidth, thumbnailHeight)
	draw.DrawMask(canvas, band, image.NewUniform(color.Black), image.Point{},
		image.NewUniform(color.Alpha{A: 160}), image.Point{}, draw.Over)

	credit := creditLine(author)
	if fontPath == "" || credit == "" {
		return canvas, nil
	}

	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail font: %w", err)
	}
	ttf, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse thumbnail font: %w", err)
	}

	fc := freetype.NewContext()
	fc.SetDPI(72)
	fc.SetFont(ttf)
	fc.SetFontSize(creditFontSize)
	fc.SetClip(canvas.Bounds())
	fc.SetDst(canvas)
	fc.SetSrc(image.NewUniform(color.White))
	fc.SetHinting(font.HintingFull)

	pt := freetype.Pt(40, bandTop+70)
	if _, err := fc.DrawString(credit, pt); err != nil {
		return nil, fmt.Errorf("draw credit: %w", err)
	}
	return canvas, nil
}

// WriteThumbnail composes and saves the thumbnail next to the transformed
// video, returning its path.
func WriteThumbnail(src image.Image, author, fontPath, destDir, name string) (string, error) {
	composed, err := ComposeThumbnail(src, author, fontPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure thumbnail dir: %w", err)
	}
	dest := filepath.Join(destDir, name+".jpg")
	if err := imaging.Save(composed, dest, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	return dest, nil
}

func creditLine(author string) string {
	author = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(author), "@"))
	if author == "" {
		return ""
	}
	return "@" + author
}
