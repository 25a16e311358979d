package detector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// maxSampledFrames bounds the samples read from long recordings.
const maxSampledFrames = 4_000_000

// AudioDetector runs sample-level LSB analysis on PCM WAV and byte-level
// container checks on compressed formats.
type AudioDetector struct{}

func NewAudioDetector() (Detector, error) {
	return &AudioDetector{}, nil
}

func (d *AudioDetector) Name() string {
	return "audio-lsb"
}

func (d *AudioDetector) Analyze(ctx context.Context, data []byte, filename string) (*Analysis, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		if strings.EqualFold(filepath.Ext(filename), ".wav") {
			return nil, errors.Wrapf(ErrUndecodable, "%s is not a valid WAV file", filename)
		}
		return analyzeCompressed(data), nil
	}

	samples, err := readSamples(ctx, dec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(ErrUndecodable, "read pcm from %s: %v", filename, err)
	}
	if len(samples) == 0 {
		return nil, errors.Wrapf(ErrUndecodable, "%s has no samples", filename)
	}

	a := analyzeSamples(samples)
	a.Details["format"] = "wav"
	a.Details["sample_rate"] = dec.SampleRate
	a.Details["bit_depth"] = dec.BitDepth
	a.Details["channels"] = dec.NumChans

	container := newAnalysis()
	inspectContainer(container, data)
	a.Findings = append(a.Findings, container.Findings...)
	for k, v := range container.Details {
		a.Details[k] = v
	}
	a.raise(container.Score)
	return a, nil
}

// readSamples reads at most maxSampledFrames samples in fixed-size chunks,
// whatever size the data chunk header declares.
func readSamples(ctx context.Context, dec *wav.Decoder) ([]int, error) {
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	buf := &audio.IntBuffer{
		Format:         dec.Format(),
		Data:           make([]int, 1<<16),
		SourceBitDepth: int(dec.BitDepth),
	}

	var samples []int
	for len(samples) < maxSampledFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			samples = append(samples, buf.Data[:n]...)
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(samples) > maxSampledFrames {
		samples = samples[:maxSampledFrames]
	}
	return samples, nil
}

func analyzeSamples(samples []int) *Analysis {
	a := newAnalysis()

	zeros, ones := 0, 0
	runs, run := 0, 0
	prev := -1
	pairs := make(map[int]*[2]int)
	for _, s := range samples {
		bit := s & 1
		if bit == 0 {
			zeros++
		} else {
			ones++
		}
		if bit == prev {
			run++
		} else {
			if prev >= 0 {
				runs++
			}
			run = 1
			prev = bit
		}

		p, ok := pairs[s>>1]
		if !ok {
			p = &[2]int{}
			pairs[s>>1] = p
		}
		p[bit]++
	}
	if run > 0 {
		runs++
	}

	flat := make([][2]int, 0, len(pairs))
	for _, p := range pairs {
		flat = append(flat, *p)
	}

	entropy := binaryEntropy(zeros, ones)
	lsb := clamp01((entropy - 0.9) / 0.1)
	meanRun := float64(len(samples)) / float64(runs)
	// Independent random bits average runs of length 2.
	runScore := clamp01(1 - math.Abs(meanRun-2)/2)
	ratio, df := pairsOfValues(flat)
	pov := povScore(ratio, df)

	a.Details["samples"] = len(samples)
	a.Details["lsb_entropy"] = entropy
	a.Details["lsb_mean_run"] = meanRun
	a.Details["pov_ratio"] = ratio
	a.Details["pov_pairs"] = df
	a.Score = clamp01(0.25*lsb + 0.2*runScore + 0.55*pov)

	if pov > 0.5 {
		a.AddFinding("Sample value pairs are equalized, typical of LSB replacement", pov,
			fmt.Sprintf("chi-square per pair %.2f over %d pairs", ratio, df))
	}
	if lsb >= 0.7 && runScore >= 0.7 {
		a.AddFinding("Sample LSBs look like random data", (lsb+runScore)/2,
			fmt.Sprintf("entropy %.4f, mean run %.2f", entropy, meanRun))
	}
	return a
}

// analyzeCompressed handles formats whose samples are not stored directly.
func analyzeCompressed(data []byte) *Analysis {
	a := newAnalysis()
	a.Score = 0.1
	a.Details["format"] = "compressed"
	a.Details["byte_entropy"] = byteEntropy(data)
	inspectContainer(a, data)
	return a
}
