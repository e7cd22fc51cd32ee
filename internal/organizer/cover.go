package organizer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"audioshelf/internal/providers"
)

const maxCoverBytes = 20 << 20

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// fetchCover downloads url into stageDir/cover.<ext>. The body must sniff
// as an image; HTML error pages served with 200 are rejected.
func (o *Organizer) fetchCover(ctx context.Context, url, stageDir string, mode os.FileMode) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build cover request: %w", err)
	}
	req.Header.Set("User-Agent", providers.UserAgent)
	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover request returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return fmt.Errorf("read cover: %w", err)
	}
	if len(data) > maxCoverBytes {
		return fmt.Errorf("cover exceeds %d bytes", maxCoverBytes)
	}
	detected := mimetype.Detect(data)
	ext, ok := coverExtensions[detected.String()]
	if !ok {
		return fmt.Errorf("cover is %s, not an image", detected.String())
	}
	if err := os.WriteFile(filepath.Join(stageDir, "cover"+ext), data, mode); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	return nil
}
