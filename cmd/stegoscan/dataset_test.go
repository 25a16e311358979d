package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stegoshield/stegoshield-api/detector"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGatherSamples(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "images", "clean", "a.png"), "x")
	writeFile(t, filepath.Join(root, "images", "stego", "nested", "b.jpg"), "x")
	writeFile(t, filepath.Join(root, "images", "stego", "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "audio", "stego", "c.wav"), "x")
	writeFile(t, filepath.Join(root, "audio", "clean", "wrong.mp4"), "x")

	samples, err := gatherSamples(root)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	got := map[string]sample{}
	for _, s := range samples {
		rel, err := filepath.Rel(root, s.path)
		require.NoError(t, err)
		got[filepath.ToSlash(rel)] = s
	}
	assert.Equal(t, detector.Image, got["images/clean/a.png"].modality)
	assert.False(t, got["images/clean/a.png"].stego)
	assert.True(t, got["images/stego/nested/b.jpg"].stego)
	assert.Equal(t, detector.Audio, got["audio/stego/c.wav"].modality)
}

func TestGatherSamplesEmpty(t *testing.T) {
	samples, err := gatherSamples(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, samples)
}

type nameScoreDetector struct{}

func (nameScoreDetector) Name() string { return "name-score" }

// Analyze scores files named stego* high and fails on broken*.
func (nameScoreDetector) Analyze(_ context.Context, _ []byte, filename string) (*detector.Analysis, error) {
	switch {
	case strings.HasPrefix(filename, "broken"):
		return nil, detector.ErrUndecodable
	case strings.HasPrefix(filename, "stego"):
		return &detector.Analysis{Score: 0.9}, nil
	}
	return &detector.Analysis{Score: 0.2}, nil
}

func TestScoreSamples(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "images", "clean", "clean1.png"), "x")
	writeFile(t, filepath.Join(root, "images", "stego", "stego1.png"), "x")
	writeFile(t, filepath.Join(root, "images", "stego", "broken.png"), "x")

	samples, err := gatherSamples(root)
	require.NoError(t, err)

	reg := detector.NewRegistry(detector.WithFactory(detector.Image, func() (detector.Detector, error) {
		return nameScoreDetector{}, nil
	}))
	results := scoreSamples(context.Background(), reg, samples, 2)
	require.Len(t, results, 3)

	for _, r := range results {
		switch filepath.Base(r.path) {
		case "broken.png":
			assert.True(t, errors.Is(r.err, detector.ErrUndecodable))
		case "stego1.png":
			assert.NoError(t, r.err)
			assert.InDelta(t, 0.9, r.score, 1e-9)
		case "clean1.png":
			assert.NoError(t, r.err)
			assert.InDelta(t, 0.2, r.score, 1e-9)
		}
	}

	groups := byModality(results)
	assert.Len(t, groups[detector.Image], 2)
}

func TestEvaluateAt(t *testing.T) {
	results := []scored{
		{sample: sample{stego: true}, score: 0.9},
		{sample: sample{stego: true}, score: 0.4},
		{sample: sample{stego: false}, score: 0.6},
		{sample: sample{stego: false}, score: 0.1},
	}

	c := evaluateAt(results, 0.5)
	assert.Equal(t, confusion{tp: 1, fp: 1, tn: 1, fn: 1}, c)
	assert.InDelta(t, 0.5, c.accuracy(), 1e-9)
	assert.InDelta(t, 0.5, c.precision(), 1e-9)
	assert.InDelta(t, 0.5, c.recall(), 1e-9)

	var empty confusion
	assert.Zero(t, empty.accuracy())
	assert.Zero(t, empty.precision())
	assert.Zero(t, empty.recall())
}

func TestBestThreshold(t *testing.T) {
	t.Run("separable scores", func(t *testing.T) {
		results := []scored{
			{sample: sample{stego: true}, score: 0.35},
			{sample: sample{stego: true}, score: 0.3},
			{sample: sample{stego: false}, score: 0.2},
			{sample: sample{stego: false}, score: 0.1},
		}
		threshold, c := bestThreshold(results)
		assert.InDelta(t, 0.3, threshold, 1e-9)
		assert.InDelta(t, 1.0, c.accuracy(), 1e-9)
	})

	t.Run("default kept on ties", func(t *testing.T) {
		results := []scored{
			{sample: sample{stego: true}, score: 0.9},
			{sample: sample{stego: false}, score: 0.1},
		}
		threshold, c := bestThreshold(results)
		assert.Equal(t, detector.DefaultThreshold, threshold)
		assert.InDelta(t, 1.0, c.accuracy(), 1e-9)
	})
}
