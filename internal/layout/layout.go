// Package layout rebuilds text lines from positioned words.
package layout

import (
	"math"
	"sort"
	"strings"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// Lines groups words sharing the same rounded top coordinate into lines,
// orders each line left to right and the lines top to bottom.
func Lines(words []entity.Word, pageIndex int) []entity.TextBlock {
	if len(words) == 0 {
		return nil
	}
	rows := make(map[float64][]entity.Word)
	var tops []float64
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		key := math.Round(w.Top)
		if _, ok := rows[key]; !ok {
			tops = append(tops, key)
		}
		rows[key] = append(rows[key], w)
	}
	sort.Float64s(tops)

	blocks := make([]entity.TextBlock, 0, len(tops))
	for _, top := range tops {
		row := rows[top]
		sort.SliceStable(row, func(i, j int) bool { return row[i].X0 < row[j].X0 })

		parts := make([]string, len(row))
		box := row[0].Box()
		for i, w := range row {
			parts[i] = w.Text
			box = box.Union(w.Box())
		}
		blocks = append(blocks, entity.TextBlock{
			PageIndex: pageIndex,
			Text:      strings.Join(parts, " "),
			BBox:      box,
		})
	}
	return blocks
}

// Blocks turns rendered pages into text blocks in page order. Native pages
// yield one block per line; an OCR page yields a single block spanning the
// page. Pages with no text contribute nothing.
func Blocks(pages []entity.Page) []entity.TextBlock {
	var out []entity.TextBlock
	for _, p := range pages {
		if p.Method == entity.MethodOCR {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			out = append(out, entity.TextBlock{PageIndex: p.Index, Text: p.Text, BBox: p.Bounds()})
			continue
		}
		out = append(out, Lines(p.Words, p.Index)...)
	}
	return out
}

// FullText joins block texts with newlines. It is the text searched for the
// bank and for fields without a rule match.
func FullText(blocks []entity.TextBlock) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}
