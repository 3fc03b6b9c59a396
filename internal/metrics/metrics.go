package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame kinds.
const (
	KindRaw        = "raw"
	KindCompressed = "compressed"
)

// Drop reasons.
const (
	DropCaptureInvalid = "capture_invalid"
	DropEncodeFailed   = "encode_failed"
	DropSizeMismatch   = "size_mismatch"
	DropDecoderInit    = "decoder_init"
	DropDecodeFailed   = "decode_failed"
	DropUnexpected     = "unexpected_compressed"
	DropQueueFull      = "queue_full"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mrdesktop_build_info",
			Help: "Build information for the mrdesktop binary",
		},
		[]string{"version", "commit"},
	)

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrdesktop_frames_sent_total",
			Help: "Frames sent by the host, by kind",
		},
		[]string{"kind"},
	)

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrdesktop_frames_received_total",
			Help: "Frames delivered to the viewer, by kind",
		},
		[]string{"kind"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrdesktop_frames_dropped_total",
			Help: "Frames discarded on either side, by reason",
		},
		[]string{"reason"},
	)

	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mrdesktop_frame_bytes_sent_total",
			Help: "Frame payload bytes sent by the host",
		},
	)

	bytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mrdesktop_frame_bytes_received_total",
			Help: "Frame payload bytes received by the viewer",
		},
	)

	codecFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrdesktop_codec_fallbacks_total",
			Help: "Encoder initialization failures that forced raw frames",
		},
		[]string{"mode"},
	)

	negotiations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrdesktop_negotiations_total",
			Help: "Compression negotiations on the host, by resulting mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	inputEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrdesktop_input_events_total",
			Help: "Input events dispatched on the host, by type",
		},
		[]string{"type"},
	)

	encodeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mrdesktop_encode_seconds",
			Help:    "Time spent encoding one frame",
			Buckets: []float64{.001, .002, .004, .008, .016, .032, .064, .128},
		},
	)
)

// Register registers all mrdesktop collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		buildInfo, framesSent, framesReceived, framesDropped,
		bytesSent, bytesReceived, codecFallbacks, negotiations,
		inputEvents, encodeSeconds,
	)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// FrameSent records one frame sent by the host with n payload bytes.
func FrameSent(kind string, n int) {
	framesSent.WithLabelValues(kind).Inc()
	bytesSent.Add(float64(n))
}

// FrameReceived records one frame accepted by the viewer with n payload bytes.
func FrameReceived(kind string, n int) {
	framesReceived.WithLabelValues(kind).Inc()
	bytesReceived.Add(float64(n))
}

func FrameDropped(reason string) { framesDropped.WithLabelValues(reason).Inc() }

func CodecFallback(mode string) { codecFallbacks.WithLabelValues(mode).Inc() }

// Negotiated records the outcome of one negotiation: "requested" when the
// viewer's request was honoured, otherwise the reason for the default.
func Negotiated(mode, outcome string) { negotiations.WithLabelValues(mode, outcome).Inc() }

func InputEvent(typ string) { inputEvents.WithLabelValues(typ).Inc() }

func ObserveEncode(d time.Duration) { encodeSeconds.Observe(d.Seconds()) }
