package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"repost/internal/ledger"
	"repost/internal/services"
)

// libraryPublisher "publishes" by moving the transformed video into a local
// library directory, alongside a metadata sidecar. Used in simulated mode.
type libraryPublisher struct {
	libraryDir string
}

func newLibraryPublisher(libraryDir string) *libraryPublisher {
	return &libraryPublisher{libraryDir: libraryDir}
}

func (p *libraryPublisher) Publish(ctx context.Context, item *ledger.Item, meta Metadata) (Result, error) {
	if strings.TrimSpace(item.TransformedPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "publish", "input", "item has no transformed media", nil)
	}
	if err := os.MkdirAll(p.libraryDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure library dir: %w", err)
	}

	dest := filepath.Join(p.libraryDir, item.SourceID+filepath.Ext(item.TransformedPath))
	if err := os.Rename(item.TransformedPath, dest); err != nil {
		// Cross-device moves fall back to copy.
		if copyErr := copyAndRemove(item.TransformedPath, dest); copyErr != nil {
			return Result{}, services.Wrap(services.ErrTransient, "publish", "move", "moving into library", copyErr)
		}
	}

	sidecar := filepath.Join(p.libraryDir, item.SourceID+".txt")
	contents := fmt.Sprintf("%s\n\n%s\n\ntags: %s\n", meta.Title, meta.Description, strings.Join(meta.Tags, ", "))
	if err := os.WriteFile(sidecar, []byte(contents), 0o644); err != nil {
		return Result{}, fmt.Errorf("write metadata sidecar: %w", err)
	}

	return Result{URL: "file://" + dest}, nil
}

func (p *libraryPublisher) Healthy(ctx context.Context) error {
	if strings.TrimSpace(p.libraryDir) == "" {
		return fmt.Errorf("library dir not configured")
	}
	return nil
}

func copyAndRemove(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
