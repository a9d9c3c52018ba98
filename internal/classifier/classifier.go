// Package classifier talks to the external model service that assigns a
// class to every sample of a recording.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chrissnell/ecogmark/internal/constants"
	"github.com/chrissnell/ecogmark/internal/types"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Window is one normalised slice of the recording, one row per channel
type Window struct {
	Start    int         `json:"start"`
	Channels [][]float64 `json:"channels"`
}

// Request is the body POSTed to the model service
type Request struct {
	SamplingRate float64  `json:"sampling_rate"`
	Samples      int      `json:"samples"`
	Windows      []Window `json:"windows"`
}

// Response carries one integer class per input sample
type Response struct {
	Classes []int `json:"classes"`
}

// Client calls the model service
type Client struct {
	endpoint      string
	windowSamples int
	httpClient    *http.Client
	logger        *zap.SugaredLogger
}

// NewClient creates a client for the service at endpoint. windowSeconds
// controls the normalisation window length.
func NewClient(endpoint string, windowSeconds float64, rate float64, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	windowSamples := int(windowSeconds * rate)
	if windowSamples < 1 {
		windowSamples = 1
	}
	return &Client{
		endpoint:      strings.TrimRight(endpoint, "/"),
		windowSamples: windowSamples,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Classify returns one class per sample of rec
func (c *Client) Classify(ctx context.Context, rec *types.Recording) ([]types.Class, error) {
	req := Request{
		SamplingRate: rec.SamplingRate(),
		Samples:      rec.Len(),
		Windows:      Windows(rec, c.windowSamples),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", constants.UserAgent)

	c.logger.Debugw("requesting classification", "samples", rec.Len(), "windows", len(req.Windows))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if len(out.Classes) != rec.Len() {
		return nil, fmt.Errorf("classifier returned %d labels for %d samples", len(out.Classes), rec.Len())
	}

	labels := make([]types.Class, len(out.Classes))
	for i, v := range out.Classes {
		if labels[i], err = types.ClassFromInt(v); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return labels, nil
}

// Windows splits rec into consecutive windows of size samples (the last one
// may be shorter) and z-score normalises each channel within each window.
func Windows(rec *types.Recording, size int) []Window {
	var channels [types.ChannelCount][]float64
	for c := range channels {
		channels[c] = rec.Channel(c)
	}

	var windows []Window
	for start := 0; start < rec.Len(); start += size {
		end := min(start+size, rec.Len())
		w := Window{Start: start, Channels: make([][]float64, types.ChannelCount)}
		for c := range channels {
			w.Channels[c] = Normalize(channels[c][start:end])
		}
		windows = append(windows, w)
	}
	return windows
}

// Normalize returns (x - mean) / stddev. A constant input maps to zeros.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) < 2 {
		return out
	}

	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 {
		return out
	}
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}
