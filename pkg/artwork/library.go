/**
 * @description
 * Package artwork owns the on-disk prize image layout: originals live in one
 * directory, pixelated ("hidden") renditions in another under the same file name.
 * It hides originals, stores admin uploads and renders collection composites.
 *
 * @dependencies
 * - github.com/disintegration/imaging: Decoding, resizing and encoding images.
 */
package artwork

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/prizedrop/prize-service/internal/domain"
)

const (
	DefaultBlocks   = 30
	DefaultTileSize = 256
)

var (
	ErrInvalidAssetRef  = errors.New("invalid asset reference")
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// Library resolves asset refs against the originals and hidden directories.
type Library struct {
	OriginalsDir string
	HiddenDir    string
	Blocks       int
	TileSize     int
}

func NewLibrary(originalsDir, hiddenDir string, blocks int) *Library {
	if blocks <= 0 {
		blocks = DefaultBlocks
	}
	return &Library{
		OriginalsDir: originalsDir,
		HiddenDir:    hiddenDir,
		Blocks:       blocks,
		TileSize:     DefaultTileSize,
	}
}

// EnsureDirs creates the originals and hidden directories if needed.
func (l *Library) EnsureDirs() error {
	for _, dir := range []string{l.OriginalsDir, l.HiddenDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create asset dir %s: %w", dir, err)
		}
	}
	return nil
}

func cleanRef(assetRef string) (string, error) {
	ref := strings.TrimSpace(assetRef)
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetRef, assetRef)
	}
	if _, err := imaging.FormatFromFilename(ref); err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, assetRef)
	}
	return ref, nil
}

// OriginalPath returns the path of the unhidden image, or domain.ErrAssetMissing.
func (l *Library) OriginalPath(assetRef string) (string, error) {
	ref, err := cleanRef(assetRef)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.OriginalsDir, ref)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrAssetMissing, ref)
		}
		return "", fmt.Errorf("stat original %s: %w", ref, err)
	}
	return path, nil
}

// HiddenPath is where the hidden rendition of assetRef is written.
func (l *Library) HiddenPath(assetRef string) (string, error) {
	ref, err := cleanRef(assetRef)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.HiddenDir, ref), nil
}

// Hide pixelates the original by shrinking it to Blocks x Blocks with nearest-neighbour
// sampling and scaling it back to its original size. The result replaces any previous
// hidden rendition atomically.
func (l *Library) Hide(ctx context.Context, assetRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	original, err := l.OriginalPath(assetRef)
	if err != nil {
		return "", err
	}
	hidden, err := l.HiddenPath(assetRef)
	if err != nil {
		return "", err
	}

	src, err := imaging.Open(original, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode original %s: %w", assetRef, err)
	}
	bounds := src.Bounds()
	small := imaging.Resize(src, l.Blocks, l.Blocks, imaging.NearestNeighbor)
	pixelated := imaging.Resize(small, bounds.Dx(), bounds.Dy(), imaging.NearestNeighbor)

	if err := os.MkdirAll(l.HiddenDir, 0o755); err != nil {
		return "", fmt.Errorf("create hidden dir: %w", err)
	}
	if err := writeImageAtomic(hidden, pixelated); err != nil {
		return "", fmt.Errorf("write hidden %s: %w", assetRef, err)
	}
	return hidden, nil
}

// Store saves an uploaded image into the originals directory and returns its asset ref.
// The name is reduced to its base; an existing file is never overwritten.
func (l *Library) Store(name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	ref, err := cleanRef(base)
	if err != nil {
		return "", err
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if err := os.MkdirAll(l.OriginalsDir, 0o755); err != nil {
		return "", fmt.Errorf("create originals dir: %w", err)
	}

	tmpName, err := encodeTemp(l.OriginalsDir, ref, img)
	if err != nil {
		return "", fmt.Errorf("write upload %s: %w", ref, err)
	}
	defer os.Remove(tmpName)

	// Link fails when the name is taken, so concurrent uploads never share a target.
	ext := filepath.Ext(ref)
	stem := strings.TrimSuffix(ref, ext)
	candidate := ref
	for i := 1; ; i++ {
		err := os.Link(tmpName, filepath.Join(l.OriginalsDir, candidate))
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publish upload %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

// List returns the asset refs of every supported image in the originals directory.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.OriginalsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read originals dir: %w", err)
	}
	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ref, err := cleanRef(entry.Name()); err == nil {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs, nil
}

func writeImageAtomic(path string, img image.Image) error {
	tmpName, err := encodeTemp(filepath.Dir(path), filepath.Base(path), img)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// encodeTemp writes img into a hidden temp file in dir, encoded by name's extension.
func encodeTemp(dir, name string, img image.Image) (string, error) {
	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if err := imaging.Encode(tmp, img, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}
