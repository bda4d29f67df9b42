// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors of the attendance pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presencia_sessions_active",
		Help: "Number of classroom sessions currently ingesting video",
	})

	SessionOpenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presencia_session_open_total",
		Help: "Total session open attempts",
	}, []string{"result"})

	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presencia_admission_total",
		Help: "Total admission decisions on device start requests",
	}, []string{"outcome"})

	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presencia_frames_processed_total",
		Help: "Total video frames run through the ingest pipeline",
	})

	DetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presencia_face_detections_total",
		Help: "Total face detections returned by the detector",
	})

	TracksIdentified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presencia_tracks_identified_total",
		Help: "Total track-to-student identity assignments",
	})

	FlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presencia_attendance_flush_total",
		Help: "Total attendance cache flushes",
	}, []string{"result"})

	RecordsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presencia_attendance_records_updated_total",
		Help: "Total attendance records changed by the writer",
	})

	DecoderStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presencia_decoder_start_total",
		Help: "Total decoder subprocess starts",
	}, []string{"result"})

	DecoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presencia_decoder_exit_total",
		Help: "Total decoder subprocess exits",
	}, []string{"reason"})

	ViewersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presencia_viewers_active",
		Help: "Number of connected MJPEG viewers",
	})
)
