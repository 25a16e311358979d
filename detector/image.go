package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// maxSampledPixels bounds the work spent on very large images.
const maxSampledPixels = 2_000_000

// maxDecodedPixels bounds the memory a decoder may allocate. Headers can
// declare dimensions far beyond what the compressed file holds.
const maxDecodedPixels = 50_000_000

// ImageDetector looks for LSB embedding in decoded pixels and for payloads
// hidden in the file container.
type ImageDetector struct{}

func NewImageDetector() (Detector, error) {
	return &ImageDetector{}, nil
}

func (d *ImageDetector) Name() string {
	return "image-lsb"
}

func (d *ImageDetector) Analyze(ctx context.Context, data []byte, filename string) (*Analysis, error) {
	var (
		pixels    *Analysis
		container = newAnalysis()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return errors.Wrapf(ErrUndecodable, "decode %s: %v", filename, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxDecodedPixels {
			return errors.Wrapf(ErrUndecodable, "decode %s: %dx%d exceeds %d pixels",
				filename, cfg.Width, cfg.Height, maxDecodedPixels)
		}

		img, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return errors.Wrapf(ErrUndecodable, "decode %s: %v", filename, err)
		}
		a, err := analyzePixels(gctx, img)
		if err != nil {
			return err
		}
		a.Details["format"] = format
		pixels = a
		return nil
	})
	g.Go(func() error {
		inspectContainer(container, data)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pixels.Findings = append(pixels.Findings, container.Findings...)
	for k, v := range container.Details {
		pixels.Details[k] = v
	}
	pixels.raise(container.Score)
	return pixels, nil
}

// channelHistograms counts 8-bit R, G and B values over a sample of pixels.
func channelHistograms(ctx context.Context, img image.Image) ([3][256]int, int, error) {
	var hist [3][256]int

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	total := width * height
	if total == 0 {
		return hist, 0, ErrUndecodable
	}
	step := 1
	if total > maxSampledPixels {
		step = (total + maxSampledPixels - 1) / maxSampledPixels
	}

	sampled := 0
	for i := 0; i < total; i += step {
		if i%(1<<16) == 0 {
			if err := ctx.Err(); err != nil {
				return hist, 0, err
			}
		}
		x := b.Min.X + i%width
		y := b.Min.Y + i/width
		c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		hist[0][c.R]++
		hist[1][c.G]++
		hist[2][c.B]++
		sampled++
	}
	return hist, sampled, nil
}

func analyzePixels(ctx context.Context, img image.Image) (*Analysis, error) {
	hist, sampled, err := channelHistograms(ctx, img)
	if err != nil {
		return nil, err
	}

	a := newAnalysis()
	a.Details["sampled_pixels"] = sampled

	names := [3]string{"R", "G", "B"}
	entropies := make([]float64, 3)
	deviation := 0.0
	var pairs [][2]int
	for c := 0; c < 3; c++ {
		zeros, ones := 0, 0
		for v := 0; v < 256; v += 2 {
			zeros += hist[c][v]
			ones += hist[c][v+1]
			pairs = append(pairs, [2]int{hist[c][v], hist[c][v+1]})
		}
		entropies[c] = binaryEntropy(zeros, ones)
		deviation += abs(float64(zeros)/float64(sampled)-0.5) * 2
		a.Details["lsb_entropy_"+names[c]] = entropies[c]
	}
	deviation /= 3

	lsb := lsbAnomaly(entropies, deviation)
	ratio, df := pairsOfValues(pairs)
	pov := povScore(ratio, df)

	a.Details["lsb_anomaly"] = lsb
	a.Details["pov_ratio"] = ratio
	a.Details["pov_pairs"] = df
	a.Score = clamp01(0.35*lsb + 0.65*pov)

	if pov > 0.5 {
		a.AddFinding("Pixel value pairs are equalized, typical of LSB replacement", pov,
			fmt.Sprintf("chi-square per pair %.2f over %d pairs", ratio, df))
	}
	if lsb >= 0.7 {
		a.AddFinding("LSB plane is statistically uniform across channels", lsb, "")
	}
	return a, nil
}

// lsbAnomaly scores how closely the LSB plane resembles random bits.
func lsbAnomaly(entropies []float64, deviation float64) float64 {
	score := 0.0

	avg := (entropies[0] + entropies[1] + entropies[2]) / 3
	if avg > 0.97 {
		score += 0.4
	} else if avg > 0.92 {
		score += 0.2
	}

	if deviation < 0.05 {
		score += 0.3
	} else if deviation < 0.1 {
		score += 0.2
	}

	if avg > 0.5 {
		if v := variance(entropies); v < 0.0001 {
			score += 0.3
		} else if v < 0.001 {
			score += 0.15
		}
	}
	return clamp01(score)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
