package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

var (
	reBoxNoise       = regexp.MustCompile(`(?m)^\s*[_\-=|]{3,}\s*$`)
	reTrailingSpaces = regexp.MustCompile(`(?m)[ \t]+$`)
	reBlankRuns      = regexp.MustCompile(`\n{3,}`)
)

// TSV columns emitted by tesseract.
const (
	tsvLevel = iota
	tsvPage
	tsvBlock
	tsvPar
	tsvLine
	tsvWord
	tsvLeft
	tsvTop
	tsvWidth
	tsvHeight
	tsvConf
	tsvText
	tsvCols
)

// tsvWordLevel is the TSV level of word rows.
const tsvWordLevel = 5

func (r *Renderer) baseArgs(img string) []string {
	args := []string{img, "stdout", "-l", r.cfg.TesseractLang}
	if r.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(r.cfg.PSM))
	}
	if r.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(r.cfg.OEM))
	}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}
	return args
}

// tesseractText returns the plain OCR text of an image.
func (r *Renderer) tesseractText(ctx context.Context, img string) (string, error) {
	// tesseract <img> stdout -l <lang>
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, r.baseArgs(img)...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return cleanOCRText(string(out)), nil
}

// tesseractWords runs tesseract in TSV mode and returns word boxes in raster
// pixels plus the mean word confidence in [0,1].
func (r *Renderer) tesseractWords(ctx context.Context, img string) ([]entity.Word, float64, error) {
	args := append(r.baseArgs(img), "tsv")
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("tesseract tsv: %w: %s", err, truncate(string(errb), 512))
	}
	words, conf := parseTSV(string(out))
	return words, conf, nil
}

// parseTSV reads word rows out of tesseract TSV output. Rows with a negative
// confidence or empty text are layout rows and are skipped.
func parseTSV(tsv string) ([]entity.Word, float64) {
	var (
		words []entity.Word
		sum   float64
	)
	for i, ln := range strings.Split(tsv, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.SplitN(ln, "\t", tsvCols)
		if len(cols) < tsvCols {
			continue
		}
		if lvl, err := strconv.Atoi(cols[tsvLevel]); err != nil || lvl != tsvWordLevel {
			continue
		}
		text := strings.TrimSpace(cols[tsvText])
		conf, err := strconv.ParseFloat(cols[tsvConf], 64)
		if err != nil || conf < 0 || text == "" {
			continue
		}
		left, err1 := strconv.ParseFloat(cols[tsvLeft], 64)
		top, err2 := strconv.ParseFloat(cols[tsvTop], 64)
		width, err3 := strconv.ParseFloat(cols[tsvWidth], 64)
		height, err4 := strconv.ParseFloat(cols[tsvHeight], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		words = append(words, entity.Word{
			Text:       text,
			X0:         left,
			X1:         left + width,
			Top:        top,
			Bottom:     top + height,
			Confidence: conf / 100,
		})
		sum += conf
	}
	if len(words) == 0 {
		return nil, 0
	}
	return words, sum / float64(len(words)) / 100
}

// cleanOCRText drops ruler lines and trailing whitespace from OCR output.
func cleanOCRText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTrailingSpaces.ReplaceAllString(s, "")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
