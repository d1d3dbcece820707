// © 2025 Termos47. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package imggen renders a headline onto a template image for publishing.
//
// A random template from the templates directory is used as the canvas;
// when none exist, a solid-color background is drawn instead. Rendering
// failures never propagate into the publish path: the caller falls back
// to a text-only post.
package imggen

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Fallback canvas size when no template is available.
const (
	defaultWidth  = 1200
	defaultHeight = 630
)

// Options configures the layout of the rendered headline.
type Options struct {
	TemplatesDir string
	FontsDir     string
	OutputDir    string
	DefaultFont  string // file name inside FontsDir

	TextColor   color.RGBA
	StrokeColor color.RGBA
	Background  color.RGBA

	StrokeWidth     int
	MaxLines        int
	TextAreaWidth   float64 // fraction of image width usable for text
	PositionX       string  // left, center, right
	PositionY       string  // top, center, bottom
	OffsetX         int
	OffsetY         int
	FontSizeRatio   float64 // fraction of image height
	LineHeightRatio float64
}

// templateOverride is a per-template layout override, read from
// templates_config.json inside the templates directory and keyed by
// template file name.
type templateOverride struct {
	Font        string `json:"font,omitempty"`
	TextColor   string `json:"text_color,omitempty"`   // "r,g,b"
	StrokeColor string `json:"stroke_color,omitempty"` // "r,g,b"
	MaxLines    int    `json:"max_lines,omitempty"`
	PositionX   string `json:"text_position_x,omitempty"`
	PositionY   string `json:"text_position_y,omitempty"`
}

// Generator renders headline cards.
type Generator struct {
	opts      Options
	overrides map[string]templateOverride
}

// New prepares the working directories and loads per-template overrides.
func New(opts Options) (*Generator, error) {
	if opts.MaxLines <= 0 {
		opts.MaxLines = 3
	}
	if opts.TextAreaWidth <= 0 || opts.TextAreaWidth > 1 {
		opts.TextAreaWidth = 0.8
	}
	if opts.FontSizeRatio <= 0 {
		opts.FontSizeRatio = 0.08
	}
	if opts.LineHeightRatio <= 0 {
		opts.LineHeightRatio = 1.2
	}
	for _, dir := range []string{opts.TemplatesDir, opts.FontsDir, opts.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("imggen: %w", err)
		}
	}

	g := &Generator{opts: opts, overrides: make(map[string]templateOverride)}

	cfgPath := filepath.Join(opts.TemplatesDir, "templates_config.json")
	if b, err := os.ReadFile(cfgPath); err == nil {
		if err := json.Unmarshal(b, &g.overrides); err != nil {
			return nil, fmt.Errorf("imggen: parsing %s: %w", cfgPath, err)
		}
	}

	return g, nil
}

// Render draws title onto a template (or a solid background) and writes
// the result as a JPEG into the output directory, returning its path. The
// file is single-use: the publisher removes it after the send attempt.
func (g *Generator) Render(title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", errors.New("imggen: empty title")
	}

	canvas, override := g.canvas()
	bounds := canvas.Bounds()

	opts := g.opts
	if override.MaxLines > 0 {
		opts.MaxLines = override.MaxLines
	}
	if override.PositionX != "" {
		opts.PositionX = override.PositionX
	}
	if override.PositionY != "" {
		opts.PositionY = override.PositionY
	}
	if c, ok := parseRGB(override.TextColor); ok {
		opts.TextColor = c
	}
	if c, ok := parseRGB(override.StrokeColor); ok {
		opts.StrokeColor = c
	}

	fontName := opts.DefaultFont
	if override.Font != "" {
		fontName = override.Font
	}

	size := int(float64(bounds.Dy()) * opts.FontSizeRatio)
	if size < 10 {
		size = 10
	}
	face := g.loadFace(fontName, float64(size))
	defer face.Close()

	maxWidth := int(float64(bounds.Dx()) * opts.TextAreaWidth)
	lines := wrapLines(face, title, maxWidth, opts.MaxLines)

	metrics := face.Metrics()
	lineHeight := int(float64(metrics.Height.Ceil()) * opts.LineHeightRatio)
	totalHeight := len(lines) * lineHeight

	y := yPosition(bounds.Dy(), totalHeight, opts.PositionY, opts.OffsetY)

	for _, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		x := xPosition(bounds.Dx(), width, opts.PositionX, opts.OffsetX)
		baseline := y + metrics.Ascent.Ceil()
		drawLine(canvas, face, line, x, baseline, opts)
		y += lineHeight
	}

	path := filepath.Join(opts.OutputDir, fmt.Sprintf("post_%d.jpg", time.Now().UnixNano()))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("imggen: %w", err)
	}
	defer out.Close()
	if err := jpeg.Encode(out, canvas, &jpeg.Options{Quality: 90}); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("imggen: encoding: %w", err)
	}
	return path, nil
}

// canvas picks a random template image, falling back to a solid
// background when no usable template exists.
func (g *Generator) canvas() (draw.Image, templateOverride) {
	var names []string
	entries, err := os.ReadDir(g.opts.TemplatesDir)
	if err == nil {
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".png", ".jpg", ".jpeg":
				names = append(names, e.Name())
			}
		}
	}

	if len(names) > 0 {
		name := names[rand.IntN(len(names))]
		if f, err := os.Open(filepath.Join(g.opts.TemplatesDir, name)); err == nil {
			defer f.Close()
			if src, _, err := image.Decode(f); err == nil {
				rgba := image.NewRGBA(src.Bounds())
				draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
				return rgba, g.overrides[name]
			}
		}
	}

	rgba := image.NewRGBA(image.Rect(0, 0, defaultWidth, defaultHeight))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(g.opts.Background), image.Point{}, draw.Src)
	return rgba, templateOverride{}
}

// loadFace loads a TTF/OTF face from the fonts directory, falling back to
// the built-in bitmap face when the font is missing or unreadable.
func (g *Generator) loadFace(name string, size float64) font.Face {
	if name != "" {
		if b, err := os.ReadFile(filepath.Join(g.opts.FontsDir, name)); err == nil {
			if parsed, err := opentype.Parse(b); err == nil {
				if face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
					Size:    size,
					DPI:     72,
					Hinting: font.HintingFull,
				}); err == nil {
					return face
				}
			}
		}
	}
	return basicfont.Face7x13
}

// wrapLines splits text into at most maxLines lines fitting maxWidth,
// breaking greedily on words. When the text doesn't fit, the last line is
// ellipsized.
func wrapLines(face font.Face, text string, maxWidth, maxLines int) []string {
	var (
		lines   []string
		current string
	)
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if font.MeasureString(face, candidate).Ceil() <= maxWidth || current == "" {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := []rune(lines[maxLines-1])
		if len(last) > 15 {
			lines[maxLines-1] = string(last[:len(last)-3]) + "..."
		}
	}
	return lines
}

func xPosition(imageWidth, textWidth int, position string, offset int) int {
	switch position {
	case "left":
		return offset
	case "right":
		return imageWidth - textWidth + offset
	default: // center
		return (imageWidth-textWidth)/2 + offset
	}
}

func yPosition(imageHeight, totalHeight int, position string, offset int) int {
	switch position {
	case "top":
		return offset
	case "bottom":
		return imageHeight - totalHeight + offset
	default: // center
		return (imageHeight-totalHeight)/2 + offset
	}
}

// drawLine draws one line of text with a stroke outline: the line is
// underdrawn in the stroke color at offsets around the final position.
func drawLine(dst draw.Image, face font.Face, line string, x, baseline int, opts Options) {
	if opts.StrokeWidth > 0 {
		stroke := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(opts.StrokeColor),
			Face: face,
		}
		for dy := -opts.StrokeWidth; dy <= opts.StrokeWidth; dy++ {
			for dx := -opts.StrokeWidth; dx <= opts.StrokeWidth; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stroke.Dot = fixed.P(x+dx, baseline+dy)
				stroke.DrawString(line)
			}
		}
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(opts.TextColor),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(line)
}

// parseRGB parses an "r,g,b" triple from a template override.
func parseRGB(s string) (color.RGBA, bool) {
	if s == "" {
		return color.RGBA{}, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color.RGBA{}, false
	}
	var rgb [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return color.RGBA{}, false
		}
		rgb[i] = uint8(n)
	}
	return color.RGBA{rgb[0], rgb[1], rgb[2], 255}, true
}
