package artwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

var ErrEmptyComposite = errors.New("composite has no tiles")

// Tile is one cell of a collection composite.
type Tile struct {
	AssetRef string
	Revealed bool
}

// Composite lays tiles out in a near-square grid and returns the PNG bytes.
// Revealed tiles use the original image; the others use the hidden rendition,
// which is generated on demand when it does not exist yet.
func (l *Library) Composite(ctx context.Context, tiles []Tile) ([]byte, error) {
	if len(tiles) == 0 {
		return nil, ErrEmptyComposite
	}
	size := l.TileSize
	if size <= 0 {
		size = DefaultTileSize
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(tiles)))))
	rows := int(math.Ceil(float64(len(tiles)) / float64(cols)))
	canvas := imaging.New(cols*size, rows*size, color.White)

	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := l.tileImage(ctx, tile)
		if err != nil {
			return nil, err
		}
		cell := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
		canvas = imaging.Paste(canvas, cell, image.Pt((i%cols)*size, (i/cols)*size))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	return buf.Bytes(), nil
}

func (l *Library) tileImage(ctx context.Context, tile Tile) (image.Image, error) {
	if tile.Revealed {
		path, err := l.OriginalPath(tile.AssetRef)
		if err != nil {
			return nil, err
		}
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	hidden, err := l.HiddenPath(tile.AssetRef)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(hidden)
	if err == nil {
		return img, nil
	}
	hidden, err = l.Hide(ctx, tile.AssetRef)
	if err != nil {
		return nil, err
	}
	return imaging.Open(hidden)
}
