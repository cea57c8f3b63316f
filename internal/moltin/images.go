package moltin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"shopbot/internal/model"
)

// ImageCache keeps product images on local disk, keyed by product name.
// A cache hit costs no network calls; a miss costs two (file metadata, then bytes).
// Entries never expire: delete the directory to refresh images.
type ImageCache struct {
	dir    string
	client *Client
}

// NewImageCache creates a cache rooted at dir. The directory is created on first write.
func NewImageCache(dir string, client *Client) *ImageCache {
	return &ImageCache{dir: dir, client: client}
}

// Path returns the local path of the product's main image, downloading it on a miss.
// Products without a main image return "".
func (c *ImageCache) Path(ctx context.Context, token string, product *model.Product) (string, error) {
	if product.ImageID == "" {
		return "", nil
	}

	path := filepath.Join(c.dir, imageFileName(product))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	link, err := c.client.FileLink(ctx, token, product.ImageID)
	if err != nil {
		return "", err
	}
	data, err := c.client.Download(ctx, link)
	if err != nil {
		return "", fmt.Errorf("downloading image for %s: %w", product.ID, err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("caching image: %w", err)
	}
	return path, nil
}

// imageFileName derives a safe file name from the product name.
func imageFileName(product *model.Product) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == ' ':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(product.Name))
	if strings.Trim(name, "_ ") == "" {
		name = product.ID
	}
	return name + ".png"
}

// writeFileAtomic writes to a temp file in the same directory and renames it,
// so a concurrent reader never sees a partial image.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".image-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
