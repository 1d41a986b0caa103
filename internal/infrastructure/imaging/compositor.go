// Package imaging builds a local preview when the generation model is unavailable.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/lelook/backend/internal/domain"
)

const (
	maxCanvasSide = 1024
	borderWidth   = 4
)

// placement is where the product overlay goes, as fractions of the canvas
type placement struct {
	width   float64 // overlay width / canvas width
	centerX float64
	centerY float64
}

var placements = map[domain.Category]placement{
	domain.CategoryClothing:  {width: 0.45, centerX: 0.5, centerY: 0.55},
	domain.CategoryFurniture: {width: 0.5, centerX: 0.5, centerY: 0.75},
	domain.CategoryPhone:     {width: 0.25, centerX: 0.7, centerY: 0.6},
	domain.CategoryOther:     {width: 0.3, centerX: 0.75, centerY: 0.75},
}

// Compositor overlays the product photo on the user photo. It implements domain.Compositor.
type Compositor struct{}

// NewCompositor creates a Compositor
func NewCompositor() *Compositor {
	return &Compositor{}
}

// Composite returns a PNG of the user photo with the product photo framed on top of it
func (c *Compositor) Composite(ctx context.Context, user, product domain.ResolvedImage, category domain.Category) (*domain.GeneratedImage, error) {
	background, _, err := image.Decode(bytes.NewReader(user.Data))
	if err != nil {
		return nil, fmt.Errorf("decode user image: %w", err)
	}
	overlay, _, err := image.Decode(bytes.NewReader(product.Data))
	if err != nil {
		return nil, fmt.Errorf("decode product image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvasRect := fitWithin(background.Bounds(), maxCanvasSide)
	canvas := image.NewRGBA(canvasRect)
	draw.CatmullRom.Scale(canvas, canvasRect, background, background.Bounds(), draw.Src, nil)

	p, ok := placements[category]
	if !ok {
		p = placements[domain.CategoryOther]
	}
	target := overlayRect(canvasRect, overlay.Bounds(), p)

	frame := target.Inset(-borderWidth).Intersect(canvasRect)
	draw.Draw(canvas, frame, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, target, overlay, overlay.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	return &domain.GeneratedImage{Data: buf.Bytes(), MIMEType: "image/png"}, nil
}

// fitWithin scales r down so its longest side is at most maxSide, keeping the aspect ratio
func fitWithin(r image.Rectangle, maxSide int) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	if w <= maxSide && h <= maxSide {
		return image.Rect(0, 0, w, h)
	}
	if w >= h {
		return image.Rect(0, 0, maxSide, max(1, h*maxSide/w))
	}
	return image.Rect(0, 0, max(1, w*maxSide/h), maxSide)
}

// overlayRect sizes the overlay by p.width and centers it at p, kept inside the canvas
func overlayRect(canvas, overlay image.Rectangle, p placement) image.Rectangle {
	w := max(1, int(float64(canvas.Dx())*p.width))
	h := max(1, w*overlay.Dy()/max(1, overlay.Dx()))
	if h > canvas.Dy() {
		h = canvas.Dy()
		w = max(1, h*overlay.Dx()/max(1, overlay.Dy()))
	}

	x := int(float64(canvas.Dx())*p.centerX) - w/2
	y := int(float64(canvas.Dy())*p.centerY) - h/2
	x = clamp(x, 0, canvas.Dx()-w)
	y = clamp(y, 0, canvas.Dy()-h)
	return image.Rect(x, y, x+w, y+h)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
