package detector

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stegoshield/stegoshield-api/metrics"
)

// Factory builds the detector for one modality.
type Factory func() (Detector, error)

type slot struct {
	once     sync.Once
	factory  Factory
	detector Detector
	err      error
}

// Registry dispatches files to per-modality detectors, each built on first
// use, and optionally consults a remote model server first.
type Registry struct {
	slots      map[Modality]*slot
	thresholds Thresholds
	remote     *RemoteClient
	sem        chan struct{}
	log        *logrus.Logger
}

type Option func(*Registry)

func WithThresholds(t Thresholds) Option {
	return func(r *Registry) {
		for m, v := range t {
			r.thresholds[m] = v
		}
	}
}

func WithRemote(c *RemoteClient) Option {
	return func(r *Registry) { r.remote = c }
}

// WithConcurrency caps the number of analyses running at once.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sem = make(chan struct{}, n)
		}
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithFactory replaces the detector built for a modality.
func WithFactory(m Modality, f Factory) Option {
	return func(r *Registry) { r.slots[m] = &slot{factory: f} }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		slots: map[Modality]*slot{
			Image: {factory: NewImageDetector},
			Audio: {factory: NewAudioDetector},
			Video: {factory: NewVideoDetector},
		},
		thresholds: Thresholds{},
		sem:        make(chan struct{}, 4),
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Threshold(m Modality) float64 {
	if v, ok := r.thresholds[m]; ok {
		return v
	}
	return DefaultThreshold
}

func (r *Registry) detector(m Modality) (Detector, error) {
	s, ok := r.slots[m]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModality, "%q", m)
	}
	s.once.Do(func() {
		start := time.Now()
		s.detector, s.err = s.factory()
		if s.err == nil {
			r.log.WithFields(logrus.Fields{
				"modality": m,
				"detector": s.detector.Name(),
				"took":     time.Since(start),
			}).Info("detector loaded")
		}
	})
	return s.detector, s.err
}

// Predict labels the file read from body. The remote model server answers
// when configured and healthy, otherwise the local detector does.
func (r *Registry) Predict(ctx context.Context, m Modality, filename string, body io.Reader) (*Prediction, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}

	if r.remote != nil {
		label, confidence, err := r.remote.Predict(ctx, filename, data)
		if err == nil {
			score := confidence
			if label == LabelSafe {
				score = 1 - confidence
			}
			metrics.Predictions.WithLabelValues(string(m), label, SourceRemote).Inc()
			return &Prediction{
				Modality:   m,
				Label:      label,
				Confidence: confidence,
				Score:      score,
				Source:     SourceRemote,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.WithError(err).WithField("modality", m).Warn("model server unavailable, using local detector")
	}

	p, err := r.predictLocal(ctx, m, filename, data)
	if err != nil {
		return nil, err
	}
	metrics.Predictions.WithLabelValues(string(m), p.Label, SourceLocal).Inc()
	return p, nil
}

// Analyze runs only the local detector.
func (r *Registry) Analyze(ctx context.Context, m Modality, filename string, data []byte) (*Prediction, error) {
	return r.predictLocal(ctx, m, filename, data)
}

func (r *Registry) predictLocal(ctx context.Context, m Modality, filename string, data []byte) (*Prediction, error) {
	d, err := r.detector(m)
	if err != nil {
		return nil, err
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	a, err := d.Analyze(ctx, data, filename)
	metrics.PredictionDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	label, confidence := labelFor(a.Score, r.Threshold(m))
	return &Prediction{
		Modality:   m,
		Label:      label,
		Confidence: confidence,
		Score:      a.Score,
		Source:     SourceLocal,
		Findings:   a.Findings,
		Details:    a.Details,
	}, nil
}

