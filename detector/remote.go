package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stegoshield/stegoshield-api/metrics"
)

// RemoteClient calls an external model server that accepts a multipart
// "file" on POST /predict and answers {"result", "confidence"}.
type RemoteClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

type remoteResponse struct {
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
}

func NewRemoteClient(baseURL string, log *logrus.Logger) *RemoteClient {
	st := gobreaker.Settings{
		Name:        "ModelServer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
			metrics.RemoteModelState.Set(float64(to))
		},
	}

	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: 20 * time.Second,
	}
}

// Predict returns the server's label and its confidence in that label.
func (c *RemoteClient) Predict(ctx context.Context, filename string, data []byte) (string, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.post(ctx, filename, data)
	})
	if err != nil {
		return "", 0, err
	}
	out := res.(*remoteResponse)
	return normalizeLabel(out.Result), clamp01(out.Confidence), nil
}

func (c *RemoteClient) post(ctx context.Context, filename string, data []byte) (*remoteResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if _, err := part.Write(data); err != nil {
		return nil, errors.Wrap(err, "write form file")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return nil, errors.Wrap(err, "build model server request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call model server")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("model server returned %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode model server response")
	}
	if normalizeLabel(out.Result) == "" {
		return nil, fmt.Errorf("model server returned unknown label %q", out.Result)
	}
	return &out, nil
}

// normalizeLabel maps the labels model servers commonly use onto ours.
func normalizeLabel(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "malicious", "stego", "steganography", "1":
		return LabelMalicious
	case "safe", "clean", "cover", "0":
		return LabelSafe
	}
	return ""
}
