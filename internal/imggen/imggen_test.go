package imggen

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Termos47/info-sender/internal/testutil"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		TemplatesDir: filepath.Join(dir, "templates"),
		FontsDir:     filepath.Join(dir, "fonts"),
		OutputDir:    filepath.Join(dir, "out"),
		TextColor:    color.RGBA{255, 255, 255, 255},
		StrokeColor:  color.RGBA{0, 0, 0, 255},
		Background:   color.RGBA{40, 40, 40, 255},
		StrokeWidth:  2,
	}
}

func TestRenderSolidBackground(t *testing.T) {
	t.Parallel()

	g, err := New(testOptions(t))
	if err != nil {
		t.Fatal(err)
	}

	path, err := g.Render("Проверка генерации изображения для канала")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(path) })

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, img.Bounds().Dx(), defaultWidth)
	testutil.AssertEqual(t, img.Bounds().Dy(), defaultHeight)
}

func TestRenderUsesTemplate(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	g, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}

	// Drop a tiny template in and re-create the generator so it is found.
	tmpl := image.NewRGBA(image.Rect(0, 0, 320, 200))
	f, err := os.Create(filepath.Join(opts.TemplatesDir, "card.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, tmpl); err != nil {
		t.Fatal(err)
	}
	f.Close()
	g, err = New(opts)
	if err != nil {
		t.Fatal(err)
	}

	path, err := g.Render("Заголовок")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(path) })

	out, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	img, err := jpeg.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, img.Bounds().Dx(), 320)
	testutil.AssertEqual(t, img.Bounds().Dy(), 200)
}

func TestRenderEmptyTitle(t *testing.T) {
	t.Parallel()

	g, err := New(testOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Render("   "); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestTemplateOverrides(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	if err := os.MkdirAll(opts.TemplatesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := `{"card.png": {"max_lines": 1, "text_color": "255,0,0", "text_position_y": "bottom"}}`
	if err := os.WriteFile(filepath.Join(opts.TemplatesDir, "templates_config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, g.overrides["card.png"].MaxLines, 1)
	testutil.AssertEqual(t, g.overrides["card.png"].PositionY, "bottom")

	c, ok := parseRGB(g.overrides["card.png"].TextColor)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, c, color.RGBA{255, 0, 0, 255})
}

func TestWrapLines(t *testing.T) {
	t.Parallel()

	face := font.Face(basicfont.Face7x13)
	// Face7x13 advances 7px per glyph: 10 chars fit into 70px.
	width := func(chars int) int { return chars * 7 }

	lines := wrapLines(face, "aaa bbb ccc", width(7), 10)
	testutil.AssertEqual(t, lines, []string{"aaa bbb", "ccc"})

	// A single overlong word is kept on its own line rather than dropped.
	lines = wrapLines(face, "aaaaaaaaaaaa bb", width(5), 10)
	testutil.AssertEqual(t, lines, []string{"aaaaaaaaaaaa", "bb"})

	// Line cap with ellipsis on a long trailing line.
	lines = wrapLines(face, strings.Repeat("wordword ", 10), width(20), 2)
	testutil.AssertEqual(t, len(lines), 2)
	if !strings.HasSuffix(lines[1], "...") {
		t.Fatalf("expected ellipsis, got %q", lines[1])
	}
}

func TestPositions(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, xPosition(100, 40, "left", 5), 5)
	testutil.AssertEqual(t, xPosition(100, 40, "right", 0), 60)
	testutil.AssertEqual(t, xPosition(100, 40, "center", 0), 30)
	testutil.AssertEqual(t, yPosition(100, 40, "top", 5), 5)
	testutil.AssertEqual(t, yPosition(100, 40, "bottom", 0), 60)
	testutil.AssertEqual(t, yPosition(100, 40, "center", 0), 30)
}
