// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/edupresencia/presencia/internal/jpegenc"
	"github.com/edupresencia/presencia/internal/metrics"
)

// MJPEGBoundary is the multipart boundary of the viewer stream.
const MJPEGBoundary = "frame"

// ServeMJPEG streams the session's latest frames as multipart JPEG parts at
// the given frame rate until the context ends or the client disconnects. A
// viewer error never disturbs the session; the caller just loses its stream.
func (s *Session) ServeMJPEG(ctx context.Context, w io.Writer, fps int) error {
	if fps < 1 {
		fps = 25
	}
	limiter := rate.NewLimiter(rate.Limit(fps), 1)
	flusher, _ := w.(http.Flusher)

	metrics.ViewersActive.Inc()
	defer metrics.ViewersActive.Dec()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		frame := s.LatestFrame()
		if frame == nil {
			continue
		}
		data, err := jpegenc.Encode(frame, jpegenc.DefaultQuality)
		if err != nil {
			s.logger.Warn().Err(err).Str("event", "viewer.encode_error").Msg("frame encode failed")
			continue
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", MJPEGBoundary); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
