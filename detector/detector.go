// Package detector is the model layer: one steganalysis detector per media
// modality, loaded on first use and dispatched by file type.
package detector

import (
	"context"
	"errors"
)

type Modality string

const (
	Image Modality = "image"
	Audio Modality = "audio"
	Video Modality = "video"
)

// Modalities lists every supported modality.
var Modalities = []Modality{Image, Audio, Video}

func (m Modality) Valid() bool {
	switch m {
	case Image, Audio, Video:
		return true
	}
	return false
}

const (
	LabelMalicious = "Malicious"
	LabelSafe      = "Safe"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

var (
	ErrUndecodable     = errors.New("detector: input could not be decoded")
	ErrUnknownModality = errors.New("detector: unknown modality")
)

// Finding is one piece of evidence found during analysis.
type Finding struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Details     string  `json:"details,omitempty"`
}

// Analysis is a detector's raw output. Score is in [0,1]; higher means
// more likely to carry a hidden payload.
type Analysis struct {
	Score    float64
	Findings []Finding
	Details  map[string]any
}

func newAnalysis() *Analysis {
	return &Analysis{Details: map[string]any{}}
}

func (a *Analysis) AddFinding(description string, confidence float64, details string) {
	a.Findings = append(a.Findings, Finding{
		Description: description,
		Confidence:  confidence,
		Details:     details,
	})
}

// raise lifts the score to at least s.
func (a *Analysis) raise(s float64) {
	if s > a.Score {
		a.Score = clamp01(s)
	}
}

// Detector analyzes the bytes of one file. Implementations must be safe for
// concurrent use.
type Detector interface {
	Name() string
	Analyze(ctx context.Context, data []byte, filename string) (*Analysis, error)
}

// Prediction is the verdict returned to callers.
type Prediction struct {
	Modality   Modality       `json:"modality"`
	Label      string         `json:"result"`
	Confidence float64        `json:"confidence"`
	Score      float64        `json:"score"`
	Source     string         `json:"source"`
	Findings   []Finding      `json:"findings,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// labelFor turns a score into a label and the confidence in that label.
func labelFor(score, threshold float64) (string, float64) {
	if score >= threshold {
		return LabelMalicious, score
	}
	return LabelSafe, 1 - score
}
