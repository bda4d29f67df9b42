// SPDX-License-Identifier: MIT

package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RemoteDetector calls an external inference service over HTTP: the raw BGR
// frame goes out as an octet stream, detections with embeddings come back as
// JSON. The model runtime stays outside this process.
type RemoteDetector struct {
	url    string
	client *http.Client
}

// NewRemoteDetector builds a detector client for the given endpoint.
func NewRemoteDetector(url string, timeout time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteDetector{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type remoteDetection struct {
	Box       [4]int    `json:"box"`
	Score     float32   `json:"score"`
	Embedding []float32 `json:"embedding"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// Detect implements Detector.
func (d *RemoteDetector) Detect(ctx context.Context, frame *Frame) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(frame.BGR))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: inference call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision: inference service answered %s", resp.Status)
	}

	var body remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("vision: decode inference response: %w", err)
	}

	out := make([]Detection, 0, len(body.Detections))
	for _, rd := range body.Detections {
		out = append(out, Detection{Box: rd.Box, Score: rd.Score, Embedding: rd.Embedding})
	}
	return out, nil
}
