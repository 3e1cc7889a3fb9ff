package ocr

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// Word segmentation thresholds, as fractions of the glyph font size.
const (
	wordGapRatio  = 0.25
	rowTolRatio   = 0.3
	glyphWidthEst = 0.5
)

// defaultPageSize is US Letter in points, used when a page has no usable MediaBox.
var defaultPageSize = [2]float64{612, 792}

// readNativePages parses the PDF text layer into words per page. The pdf
// package panics on some malformed inputs, so those are turned into errors.
func readNativePages(data []byte) (pages []entity.Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := reader.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages = make([]entity.Page, 0, n)
	for i := 1; i <= n; i++ {
		p := reader.Page(i)
		w, h := pageSize(p)
		page := entity.Page{Index: i - 1, Width: w, Height: h, Method: entity.MethodNative}
		if !p.V.IsNull() {
			page.Words = glyphsToWords(p.Content().Text, h)
		}
		page.Text = wordsText(page.Words)
		pages = append(pages, page)
	}
	return pages, nil
}

func pageSize(p pdf.Page) (float64, float64) {
	box := mediaBox(p.V)
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return defaultPageSize[0], defaultPageSize[1]
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageSize[0], defaultPageSize[1]
	}
	return w, h
}

// mediaBox looks up MediaBox on the page or the nearest ancestor that defines it.
func mediaBox(v pdf.Value) pdf.Value {
	for ; !v.IsNull(); v = v.Key("Parent") {
		if box := v.Key("MediaBox"); !box.IsNull() {
			return box
		}
	}
	return pdf.Value{}
}

// glyphsToWords merges glyph runs into words. Glyphs are grouped into rows by
// baseline, sorted left to right, and split on whitespace or on a horizontal
// gap wider than a quarter of the font size. Coordinates are converted to a
// top-left origin.
func glyphsToWords(glyphs []pdf.Text, pageHeight float64) []entity.Word {
	if len(glyphs) == 0 {
		return nil
	}
	gs := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if g.W <= 0 {
			g.W = glyphWidthEst * g.FontSize * float64(len([]rune(g.S)))
		}
		gs = append(gs, g)
	}
	sort.SliceStable(gs, func(i, j int) bool {
		if math.Abs(gs[i].Y-gs[j].Y) > rowTol(gs[i], gs[j]) {
			return gs[i].Y > gs[j].Y
		}
		return gs[i].X < gs[j].X
	})

	var (
		words []entity.Word
		cur   strings.Builder
		word  entity.Word
		last  pdf.Text
		open  bool
	)
	flush := func() {
		if open && strings.TrimSpace(cur.String()) != "" {
			word.Text = cur.String()
			words = append(words, word)
		}
		cur.Reset()
		open = false
	}

	for _, g := range gs {
		newRow := open && math.Abs(g.Y-last.Y) > rowTol(g, last)
		gap := g.X - (last.X + last.W)
		if newRow || (open && gap > wordGapRatio*math.Max(g.FontSize, 1)) {
			flush()
		}
		for _, r := range g.S {
			if unicode.IsSpace(r) {
				flush()
				continue
			}
			if !open {
				word = entity.Word{
					X0:     g.X,
					X1:     g.X + g.W,
					Top:    pageHeight - g.Y - g.FontSize,
					Bottom: pageHeight - g.Y,
				}
				open = true
			}
			cur.WriteRune(r)
			word.X1 = math.Max(word.X1, g.X+g.W)
			word.Top = math.Min(word.Top, pageHeight-g.Y-g.FontSize)
			word.Bottom = math.Max(word.Bottom, pageHeight-g.Y)
		}
		last = g
	}
	flush()
	return words
}

func rowTol(a, b pdf.Text) float64 {
	return math.Max(1, rowTolRatio*math.Max(a.FontSize, b.FontSize))
}

// wordsText joins words into plain text, one line per distinct word top.
func wordsText(words []entity.Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			if math.Round(words[i-1].Top) == math.Round(w.Top) {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
