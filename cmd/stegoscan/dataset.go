package main

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/stegoshield/stegoshield-api/detector"
	"github.com/stegoshield/stegoshield-api/utils"
)

// datasetDirs maps the top-level folders of a dataset to their modality.
// Each holds a clean/ and a stego/ folder.
var datasetDirs = map[string]detector.Modality{
	"images": detector.Image,
	"audio":  detector.Audio,
	"video":  detector.Video,
}

type sample struct {
	path     string
	modality detector.Modality
	stego    bool
}

type scored struct {
	sample
	score float64
	err   error
}

// gatherSamples lists the labelled files under root. Files whose extension
// does not belong to the folder's modality are skipped.
func gatherSamples(root string) ([]sample, error) {
	var samples []sample
	for dir, m := range datasetDirs {
		for class, stego := range map[string]bool{"clean": false, "stego": true} {
			base := filepath.Join(root, dir, class)
			if _, err := os.Stat(base); os.IsNotExist(err) {
				continue
			}
			err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				if detector.Modality(utils.ModalityFor(path, "")) != m {
					return nil
				}
				samples = append(samples, sample{path: path, modality: m, stego: stego})
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].path < samples[j].path })
	return samples, nil
}

// scoreSamples runs the local detectors over every sample. Per-file
// failures are kept on the result rather than aborting the run.
func scoreSamples(ctx context.Context, reg *detector.Registry, samples []sample, workers int) []scored {
	results := make([]scored, len(samples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, s := range samples {
		g.Go(func() error {
			res := scored{sample: s}
			data, err := os.ReadFile(s.path)
			if err == nil {
				var p *detector.Prediction
				p, err = reg.Analyze(ctx, s.modality, filepath.Base(s.path), data)
				if err == nil {
					res.score = p.Score
				}
			}
			res.err = err
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// byModality groups successfully scored samples.
func byModality(results []scored) map[detector.Modality][]scored {
	groups := map[detector.Modality][]scored{}
	for _, r := range results {
		if r.err != nil {
			continue
		}
		groups[r.modality] = append(groups[r.modality], r)
	}
	return groups
}

type confusion struct {
	tp, fp, tn, fn int
}

func evaluateAt(results []scored, threshold float64) confusion {
	var c confusion
	for _, r := range results {
		flagged := r.score >= threshold
		switch {
		case flagged && r.stego:
			c.tp++
		case flagged && !r.stego:
			c.fp++
		case !flagged && r.stego:
			c.fn++
		default:
			c.tn++
		}
	}
	return c
}

func (c confusion) total() int { return c.tp + c.fp + c.tn + c.fn }

func (c confusion) accuracy() float64 {
	if c.total() == 0 {
		return 0
	}
	return float64(c.tp+c.tn) / float64(c.total())
}

func (c confusion) precision() float64 {
	if c.tp+c.fp == 0 {
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fp)
}

func (c confusion) recall() float64 {
	if c.tp+c.fn == 0 {
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fn)
}

// bestThreshold picks the threshold with the highest accuracy. Candidates
// are the observed scores plus the default; ties go to the candidate
// closest to the default.
func bestThreshold(results []scored) (float64, confusion) {
	candidates := []float64{detector.DefaultThreshold}
	for _, r := range results {
		candidates = append(candidates, r.score)
	}

	best := detector.DefaultThreshold
	bestC := evaluateAt(results, best)
	for _, t := range candidates {
		c := evaluateAt(results, t)
		switch {
		case c.accuracy() > bestC.accuracy():
		case c.accuracy() == bestC.accuracy() &&
			math.Abs(t-detector.DefaultThreshold) < math.Abs(best-detector.DefaultThreshold):
		default:
			continue
		}
		best, bestC = t, c
	}
	return best, bestC
}
