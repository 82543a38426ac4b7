// Package vad turns raw 16kHz mono PCM into the rolling speech-probability
// statistics the coordinator's endpointing policy consumes.
package vad

import (
	"container/ring"
	"encoding/binary"
	"math"

	"github.com/streamer45/silero-vad-go/speech"
)

// Sample is one chunk's worth of speech-activity statistics.
type Sample struct {
	SpeechProb        float64
	MeanProb          float64
	SilenceRatioShort float64 // over the last 5 samples, threshold 0.05
	SilenceRatioLong  float64 // over the last 20 samples, threshold 0.05
}

// Provider turns one fixed-size PCM chunk into a Sample.
type Provider interface {
	Process(chunk []byte) (Sample, error)
	Reset()
	Name() string
}

const (
	shortWindow    = 5
	longWindow     = 20
	silenceFloor   = 0.05
	probHistoryLen = 50
)

type probHistory struct {
	r   *ring.Ring
	n   int
}

func newProbHistory() *probHistory {
	return &probHistory{r: ring.New(probHistoryLen)}
}

func (h *probHistory) push(p float64) {
	h.r.Value = p
	h.r = h.r.Next()
	if h.n < probHistoryLen {
		h.n++
	}
}

// window returns up to n most recent values, most recent last.
func (h *probHistory) window(n int) []float64 {
	if n > h.n {
		n = h.n
	}
	out := make([]float64, 0, n)
	r := h.r
	for i := 0; i < n; i++ {
		r = r.Prev()
	}
	for i := 0; i < n; i++ {
		out = append(out, r.Value.(float64))
		r = r.Next()
	}
	return out
}

func silenceRatio(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	quiet := 0
	for _, v := range vals {
		if v < silenceFloor {
			quiet++
		}
	}
	return float64(quiet) / float64(len(vals))
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleFromHistory(h *probHistory, instant float64) Sample {
	short := h.window(shortWindow)
	long := h.window(longWindow)
	return Sample{
		SpeechProb:        instant,
		MeanProb:          mean(short),
		SilenceRatioShort: silenceRatio(short),
		SilenceRatioLong:  silenceRatio(long),
	}
}

// Silero wraps the onnxruntime-backed Silero VAD model. Chunks are expected
// to be 512 samples (32ms) of 16kHz mono PCM, its native frame size.
type Silero struct {
	detector *speech.Detector
	history  *probHistory
}

// NewSilero loads the model at modelPath.
func NewSilero(modelPath string) (*Silero, error) {
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           16000,
		Threshold:            0.2,
		MinSilenceDurationMs: 100,
		SpeechPadMs:          30,
	})
	if err != nil {
		return nil, err
	}
	return &Silero{detector: d, history: newProbHistory()}, nil
}

func pcm16ToFloat32(chunk []byte) []float32 {
	samples := make([]float32, len(chunk)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(chunk[i*2 : i*2+2]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// Process runs the model over one chunk and folds the result into the
// rolling probability history.
func (s *Silero) Process(chunk []byte) (Sample, error) {
	samples := pcm16ToFloat32(chunk)

	segments, err := s.detector.Detect(samples)
	if err != nil {
		return Sample{}, err
	}

	instant := 0.0
	if len(segments) > 0 {
		instant = 1.0
	}

	s.history.push(instant)
	return sampleFromHistory(s.history, instant), nil
}

func (s *Silero) Reset() {
	s.history = newProbHistory()
	if s.detector != nil {
		s.detector.Reset()
	}
}

func (s *Silero) Name() string { return "silero_vad" }

// Close releases the onnxruntime session.
func (s *Silero) Close() error {
	if s.detector != nil {
		return s.detector.Destroy()
	}
	return nil
}

// RMSFallback is a lightweight, model-free Provider used when no Silero
// model path is configured. It emulates the probability interface with a
// normalized RMS amplitude so the coordinator's endpointing policy works
// unmodified in local/dev setups.
type RMSFallback struct {
	history *probHistory
}

func NewRMSFallback() *RMSFallback {
	return &RMSFallback{history: newProbHistory()}
}

func (r *RMSFallback) Process(chunk []byte) (Sample, error) {
	if len(chunk) == 0 {
		r.history.push(0)
		return sampleFromHistory(r.history, 0), nil
	}

	var sumSq float64
	n := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		v := int16(binary.LittleEndian.Uint16(chunk[i : i+2]))
		f := float64(v) / 32768.0
		sumSq += f * f
		n++
	}
	rms := math.Sqrt(sumSq / float64(n))
	// RMS amplitude of conversational speech rarely exceeds ~0.3; scale so
	// the floor/threshold constants tuned for Silero's [0,1] output still
	// behave sensibly.
	instant := rms / 0.3
	if instant > 1 {
		instant = 1
	}

	r.history.push(instant)
	return sampleFromHistory(r.history, instant), nil
}

func (r *RMSFallback) Reset() {
	r.history = newProbHistory()
}

func (r *RMSFallback) Name() string { return "rms_fallback" }
