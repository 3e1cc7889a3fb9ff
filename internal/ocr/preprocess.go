package ocr

import (
	"image"
	"image/draw"
	"math"
)

// Binarize converts img to grayscale, smooths it with an edge-preserving
// bilateral filter and thresholds it with Otsu's method.
func Binarize(img image.Image, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	gray := Grayscale(img)
	smooth := Bilateral(gray, diameter, sigmaColor, sigmaSpace)
	return Threshold(smooth, Otsu(smooth))
}

// Grayscale converts with the ITU-R 601 luma weights (0.299, 0.587, 0.114).
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Bilateral applies a bilateral filter over a circular window of the given
// diameter. Borders replicate the edge pixels.
func Bilateral(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}
	radius := diameter / 2
	if radius < 1 {
		copy(dst.Pix, src.Pix)
		return dst
	}

	type tap struct {
		dx, dy int
		weight float64
	}
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if math.Sqrt(d2) > float64(radius) {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, weight: math.Exp(d2 * spaceCoeff)})
		}
	}
	var colorWeight [256]float64
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	at := func(x, y int) uint8 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return src.Pix[(b.Min.Y+y-src.Rect.Min.Y)*src.Stride+(b.Min.X+x-src.Rect.Min.X)]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := int(at(x, y))
			var sum, norm float64
			for _, t := range taps {
				v := int(at(x+t.dx, y+t.dy))
				diff := v - center
				if diff < 0 {
					diff = -diff
				}
				wt := t.weight * colorWeight[diff]
				sum += wt * float64(v)
				norm += wt
			}
			dst.Pix[y*dst.Stride+x] = uint8(math.Round(sum / norm))
		}
	}
	return dst
}

// Otsu returns the global threshold that maximizes between-class variance.
func Otsu(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-img.Rect.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			hist[row[b.Min.X-img.Rect.Min.X+x]]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}
	var (
		sumBg    float64
		weightBg int
		best     float64
		thresh   int
	)
	for t := 0; t < 256; t++ {
		weightBg += hist[t]
		if weightBg == 0 {
			continue
		}
		weightFg := total - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(t * hist[t])
		meanBg := sumBg / float64(weightBg)
		meanFg := (sumAll - sumBg) / float64(weightFg)
		between := float64(weightBg) * float64(weightFg) * (meanBg - meanFg) * (meanBg - meanFg)
		if between > best {
			best = between
			thresh = t
		}
	}
	return uint8(thresh)
}

// Threshold maps pixels above t to white and the rest to black.
func Threshold(img *image.Gray, t uint8) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.Pix[(b.Min.Y+y-img.Rect.Min.Y)*img.Stride+(b.Min.X+x-img.Rect.Min.X)]
			if v > t {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}
