package dedup

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/disintegration/imaging"
)

// Hash is a 64-bit difference hash of an image. Visually similar images
// produce hashes with a small Hamming distance.
type Hash uint64

// String renders the hash as fixed-width hex, the form stored on ledger items.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHash converts the hex form back into a Hash.
func ParseHash(value string) (Hash, error) {
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", value, err)
	}
	return Hash(v), nil
}

// Distance returns the Hamming distance between two hashes.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// HashImage computes the difference hash of an image: the frame is reduced to
// a 9x8 grayscale grid and each bit records whether brightness increases
// between horizontal neighbors.
func HashImage(img image.Image) Hash {
	gray := imaging.Grayscale(img)
	small := imaging.Resize(gray, 9, 8, imaging.Lanczos)

	var hash uint64
	bit := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			left := luminance(small.At(small.Bounds().Min.X+x, small.Bounds().Min.Y+y))
			right := luminance(small.At(small.Bounds().Min.X+x+1, small.Bounds().Min.Y+y))
			if left < right {
				hash |= 1 << uint(63-bit)
			}
			bit++
		}
	}
	return Hash(hash)
}

// HashFile computes the difference hash of an image file on disk.
func HashFile(path string) (Hash, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open media for hashing: %w", err)
	}
	return HashImage(img), nil
}

func luminance(c interface{ RGBA() (r, g, b, a uint32) }) uint32 {
	r, g, b, _ := c.RGBA()
	// Rec. 601 luma weights.
	return (299*r + 587*g + 114*b) / 1000
}
