// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPStopNotifier posts /stop_transmission to a device's local HTTP
// endpoint, echoing the device's own bearer token back to it.
type HTTPStopNotifier struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPStopNotifier builds a notifier with the given per-call timeout.
func NewHTTPStopNotifier(timeout time.Duration) *HTTPStopNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStopNotifier{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// NotifyStop implements StopNotifier.
func (n *HTTPStopNotifier) NotifyStop(ctx context.Context, ip string, port int, token string) error {
	ctx, cancel := context.WithTimeout(ctx, n.Timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/stop_transmission", ip, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("stop_transmission: device answered %s", resp.Status)
	}
	return nil
}
