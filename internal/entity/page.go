package entity

// Extraction methods recorded per page.
const (
	MethodNative = "native"
	MethodOCR    = "ocr"
)

// Page is the rendered content of one PDF page.
type Page struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Method string  `json:"method"`
	// Text is the plain page text: the native text or the OCR engine output.
	Text  string `json:"text"`
	Words []Word `json:"words"`
	// OCRConfidence is the mean word confidence in [0,1]; zero for native pages.
	OCRConfidence float64 `json:"ocr_confidence,omitempty"`
}

// Bounds returns the full page box.
func (p Page) Bounds() BBox {
	return BBox{X0: 0, Y0: 0, X1: p.Width, Y1: p.Height}
}
