package transport

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	opus "gopkg.in/hraban/opus.v2"
)

const inboundSampleRate = 48000

// PacketSource is pulled at wall-clock rate to fill the outbound track.
type PacketSource interface {
	NextPacket() (data []byte, ptsCount int64, isSpeech bool)
}

// InboundHandler decodes the remote Opus track and hands raw 48kHz mono PCM
// frames to onFrame. Callers that need 16kHz for VAD should downsample via
// DownsampleTo16k themselves; the STT wire contract wants the 48kHz audio
// untouched.
type InboundHandler struct {
	decoder *opus.Decoder
	onFrame func(pcm48kHzMono []byte)
}

func NewInboundHandler(onFrame func([]byte)) (*InboundHandler, error) {
	dec, err := opus.NewDecoder(inboundSampleRate, 1)
	if err != nil {
		return nil, err
	}
	return &InboundHandler{decoder: dec, onFrame: onFrame}, nil
}

// Run reads RTP packets from track until ctx is cancelled or the track ends.
func (h *InboundHandler) Run(ctx context.Context, track *webrtc.TrackRemote) error {
	pcm := make([]int16, 5760)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			return err
		}

		n, err := h.decoder.Decode(pkt.Payload, pcm)
		if err != nil || n <= 0 {
			continue
		}

		out := make([]byte, n*2)
		for i := 0; i < n; i++ {
			out[i*2] = byte(pcm[i])
			out[i*2+1] = byte(pcm[i] >> 8)
		}
		h.onFrame(out)
	}
}

// DownsampleTo16k converts 48kHz mono 16-bit PCM bytes to 16kHz mono PCM
// bytes via simple 1-in-3 decimation, matching the teacher's preference for
// plain arithmetic over a DSP dependency for this narrow, fixed ratio.
func DownsampleTo16k(pcm48k []byte) []byte {
	out := make([]byte, 0, len(pcm48k)/3)
	for i := 0; i+5 < len(pcm48k); i += 6 {
		out = append(out, pcm48k[i], pcm48k[i+1])
	}
	return out
}

// OutboundPacer drains src at 20ms real-time intervals and writes samples to
// track, the realization of the packet-pacing scheduler as a WebRTC track
// producer.
type OutboundPacer struct {
	track *webrtc.TrackLocalStaticSample
	src   PacketSource
}

func NewOutboundPacer(track *webrtc.TrackLocalStaticSample, src PacketSource) *OutboundPacer {
	return &OutboundPacer{track: track, src: src}
}

// Run pushes samples until ctx is cancelled.
func (p *OutboundPacer) Run(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, ptsCount, _ := p.src.NextPacket()
			duration := time.Duration(ptsCount) * time.Second / time.Duration(outboundSampleRateConst)
			p.track.WriteSample(media.Sample{Data: data, Duration: duration})
		}
	}
}

const outboundSampleRateConst = 48000
