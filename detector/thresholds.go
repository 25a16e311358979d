package detector

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// DefaultThreshold is used for modalities without a calibrated value.
const DefaultThreshold = 0.5

// Thresholds maps a modality to the score at or above which a file is
// labelled Malicious.
type Thresholds map[Modality]float64

// LoadThresholds reads a JSON object such as {"image":0.42,"audio":0.6}.
func LoadThresholds(path string) (Thresholds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read thresholds %s", path)
	}
	var t Thresholds
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrapf(err, "parse thresholds %s", path)
	}
	for m, v := range t {
		if !m.Valid() {
			return nil, fmt.Errorf("thresholds %s: unknown modality %q", path, m)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("thresholds %s: %s threshold %v outside [0,1]", path, m, v)
		}
	}
	return t, nil
}

func SaveThresholds(path string, t Thresholds) error {
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode thresholds")
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "write thresholds %s", path)
	}
	return nil
}
