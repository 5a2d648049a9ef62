package gfx

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/photonicat/pcat2_slot_display/internal/gif"
	"github.com/photonicat/pcat2_slot_display/internal/syncutil"
	"github.com/spf13/afero"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// Loader reads icons and fonts from a filesystem and caches the decoded
// results. It is safe for concurrent use.
type Loader struct {
	fs     afero.Fs
	mu     syncutil.Mutex
	images map[string]*image.RGBA
	faces  map[string]font.Face
}

func NewLoader(fs afero.Fs) *Loader {
	return &Loader{
		fs:     fs,
		images: make(map[string]*image.RGBA),
		faces:  make(map[string]font.Face),
	}
}

// Image loads a PNG, JPEG, GIF (first frame) or SVG file. SVGs are rendered
// at their intrinsic size unless width and height are both positive.
func (l *Loader) Image(path string, width, height int) (*image.RGBA, error) {
	key := fmt.Sprintf("%s_%d_%d", path, width, height)

	l.mu.Lock()
	defer l.mu.Unlock()

	if img, ok := l.images[key]; ok {
		return img, nil
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, err
	}

	var img image.Image
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		img, err = png.Decode(bytes.NewReader(data))
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case ".gif":
		var anim *gif.Animation
		anim, err = gif.Decode(bytes.NewReader(data))
		if err == nil {
			img = anim.Frames[0].Image
		}
	case ".svg":
		img, err = RasterizeSVG(data, width, height)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	l.images[key] = rgba
	return rgba, nil
}

// Face loads an opentype font at the given size in points.
func (l *Loader) Face(path string, size float64) (font.Face, error) {
	key := fmt.Sprintf("%s_%.1f", path, size)

	l.mu.Lock()
	defer l.mu.Unlock()

	if face, ok := l.faces[key]; ok {
		return face, nil
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("error reading font file: %w", err)
	}
	ttf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing font: %w", err)
	}
	face, err := opentype.NewFace(ttf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	l.faces[key] = face
	return face, nil
}

// RasterizeSVG renders SVG source into a transparent RGBA image. A zero
// width or height falls back to the view box size.
func RasterizeSVG(data []byte, width, height int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		width = int(icon.ViewBox.W)
		height = int(icon.ViewBox.H)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: svg view box %dx%d", ErrInvalidSize, width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	icon.SetTarget(0, 0, float64(width), float64(height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)
	return img, nil
}
