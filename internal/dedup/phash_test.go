package dedup_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"repost/internal/dedup"
)

func stripeImage(width, height, stripe, skew int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(0)
			if ((x+y*skew)/stripe)%2 == 0 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestHashIsStable(t *testing.T) {
	img := stripeImage(128, 128, 8, 1)
	a := dedup.HashImage(img)
	b := dedup.HashImage(img)
	if a != b {
		t.Fatalf("same image hashed differently: %s vs %s", a, b)
	}
}

func TestHashSurvivesResize(t *testing.T) {
	img := stripeImage(256, 256, 16, 1)
	scaled := imaging.Resize(img, 96, 96, imaging.Lanczos)

	d := dedup.Distance(dedup.HashImage(img), dedup.HashImage(scaled))
	if d > 10 {
		t.Fatalf("resized image drifted too far: distance %d", d)
	}
}

func TestDistinctImagesAreDistant(t *testing.T) {
	a := dedup.HashImage(stripeImage(128, 128, 4, 1))
	b := dedup.HashImage(stripeImage(128, 128, 31, 7))
	if d := dedup.Distance(a, b); d <= 10 {
		t.Fatalf("structurally different images too close: distance %d", d)
	}
}

func TestHashStringRoundTrip(t *testing.T) {
	hash := dedup.Hash(0x0123456789abcdef)
	parsed, err := dedup.ParseHash(hash.String())
	if err != nil {
		t.Fatalf("ParseHash failed: %v", err)
	}
	if parsed != hash {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, hash)
	}
	if _, err := dedup.ParseHash("not-hex"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDistance(t *testing.T) {
	if d := dedup.Distance(0, 0); d != 0 {
		t.Fatalf("identical hashes distance = %d", d)
	}
	if d := dedup.Distance(0, ^dedup.Hash(0)); d != 64 {
		t.Fatalf("inverted hashes distance = %d", d)
	}
	if d := dedup.Distance(0b1011, 0b0010); d != 3 {
		t.Fatalf("distance = %d, want 3", d)
	}
}
