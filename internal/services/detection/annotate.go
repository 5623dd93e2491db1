package detection

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

const boxThickness = 3

var (
	classColors = map[string]color.RGBA{
		"gun":    {R: 255, A: 255},
		"knife":  {R: 255, G: 165, A: 255},
		"rifle":  {R: 200, A: 255},
		"pistol": {R: 255, G: 100, A: 255},
	}
	defaultColor = color.RGBA{G: 255, A: 255}
	bannerColor  = color.RGBA{R: 255, A: 255}
)

// Annotator draws detections and a timestamp onto a copy of a frame.
type Annotator struct {
	ShowConfidence bool
	Now            func() time.Time
}

func NewAnnotator() *Annotator {
	return &Annotator{ShowConfidence: true, Now: time.Now}
}

// Annotate returns a new image; src is never modified.
func (a *Annotator) Annotate(src image.Image, detections []models.Detection) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	face := basicfont.Face7x13
	for _, det := range detections {
		c, ok := classColors[det.ClassName]
		if !ok {
			c = defaultColor
		}
		box := image.Rect(det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3]).Add(b.Min).Intersect(b)
		if box.Empty() {
			continue
		}

		// 10% tint over the detected region
		tint := color.NRGBA{R: c.R, G: c.G, B: c.B, A: 25}
		draw.Draw(dst, box, &image.Uniform{C: tint}, image.Point{}, draw.Over)
		strokeRect(dst, box, c, boxThickness)

		label := strings.ToUpper(det.ClassName)
		if a.ShowConfidence {
			label += fmt.Sprintf(" %.1f%%", det.Confidence*100)
		}
		labelW := font.MeasureString(face, label).Ceil() + 10
		labelH := face.Height + 10
		top := box.Min.Y - labelH
		if top < b.Min.Y {
			top = box.Min.Y
		}
		bg := image.Rect(box.Min.X, top, box.Min.X+labelW, top+labelH).Intersect(b)
		draw.Draw(dst, bg, &image.Uniform{C: c}, image.Point{}, draw.Src)
		drawText(dst, label, box.Min.X+5, top+labelH-7, color.White)
	}

	if len(detections) > 0 {
		drawText(dst, fmt.Sprintf("WEAPON DETECTED: %d", len(detections)), b.Min.X+10, b.Min.Y+30, bannerColor)
	}

	a.timestampOverlay(dst)
	return dst
}

func (a *Annotator) timestampOverlay(dst *image.RGBA) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	b := dst.Bounds()
	bg := image.Rect(b.Min.X+10, b.Max.Y-40, b.Min.X+250, b.Max.Y-10).Intersect(b)
	draw.Draw(dst, bg, &image.Uniform{C: color.NRGBA{A: 128}}, image.Point{}, draw.Over)
	drawText(dst, now().Format("2006-01-02 15:04:05"), b.Min.X+15, b.Max.Y-18, color.White)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, t int) {
	u := &image.Uniform{C: c}
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t).Intersect(r), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y).Intersect(r), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y).Intersect(r), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y).Intersect(r), u, image.Point{}, draw.Src)
}

func drawText(dst *image.RGBA, text string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
