package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// ocrPage rasterizes one page, cleans the image up and runs tesseract on it.
// All intermediate files live under scratch.
func (r *Renderer) ocrPage(ctx context.Context, path string, np entity.Page, scratch string) (entity.Page, error) {
	pageNo := strconv.Itoa(np.Index + 1)
	prefix := filepath.Join(scratch, "page-"+pageNo)

	// pdftoppm -r 200 -f N -l N -singlefile -png <in.pdf> <scratch/page-N>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", strconv.Itoa(r.cfg.DPI),
		"-f", pageNo, "-l", pageNo,
		"-singlefile", "-png",
		path, prefix,
	)
	if err != nil {
		return entity.Page{}, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	img, err := loadPNG(prefix + ".png")
	if err != nil {
		return entity.Page{}, fmt.Errorf("load raster: %w", err)
	}
	bin := Binarize(img, r.cfg.BilateralDiameter, r.cfg.BilateralSigmaColor, r.cfg.BilateralSigmaSpace)
	binPath := prefix + "-bin.png"
	if err := savePNG(binPath, bin); err != nil {
		return entity.Page{}, fmt.Errorf("save binarized raster: %w", err)
	}

	text, err := r.tesseractText(ctx, binPath)
	if err != nil {
		return entity.Page{}, err
	}
	words, conf, err := r.tesseractWords(ctx, binPath)
	if err != nil {
		return entity.Page{}, err
	}

	// word boxes come back in raster pixels; convert to page points
	scale := 72.0 / float64(r.cfg.DPI)
	for i := range words {
		words[i].X0 *= scale
		words[i].X1 *= scale
		words[i].Top *= scale
		words[i].Bottom *= scale
	}

	return entity.Page{
		Index:         np.Index,
		Width:         np.Width,
		Height:        np.Height,
		Method:        entity.MethodOCR,
		Text:          text,
		Words:         words,
		OCRConfidence: conf,
	}, nil
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
