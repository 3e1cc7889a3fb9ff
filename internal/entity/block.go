package entity

// BBox is an axis-aligned box in page points, origin at the top-left corner.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Word is one positioned word on a page, either from native text or OCR.
type Word struct {
	Text       string  `json:"text"`
	X0         float64 `json:"x0"`
	X1         float64 `json:"x1"`
	Top        float64 `json:"top"`
	Bottom     float64 `json:"bottom"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Box returns the word's bounding box.
func (w Word) Box() BBox {
	return BBox{X0: w.X0, Y0: w.Top, X1: w.X1, Y1: w.Bottom}
}

// TextBlock is a reconstructed line, or a whole OCR page, with its position.
type TextBlock struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
	BBox      BBox   `json:"bbox"`
}
