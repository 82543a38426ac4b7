// Package oggopus incrementally parses an Ogg bitstream carrying Opus audio,
// the framing TTS vendors stream speech synthesis results in. Bytes can be
// fed in any chunking and pages are extracted as soon as they're complete.
package oggopus

import (
	"encoding/binary"
)

const (
	pageMagic    = "OggS"
	headerMagic  = "OpusHead"
	commentMagic = "OpusTags"
)

// Meta is the stream metadata carried in the OpusHead page.
type Meta struct {
	Version      uint8
	ChannelCount uint8
	PreSkip      uint16
	SampleRate   uint32
	Gain         int16
	ChannelMap   uint8
}

// PacketFunc receives one encoded Opus packet (one segment of an audio page)
// and the stream metadata it belongs to.
type PacketFunc func(packet []byte, meta Meta)

// Processor extracts Opus packets from a growing byte buffer page by page.
type Processor struct {
	onPacket PacketFunc
	buf      []byte
	meta     *Meta
	haveMeta bool
}

// New creates a Processor that calls onPacket for every audio packet found
// after the OpusHead metadata page has been seen.
func New(onPacket PacketFunc) *Processor {
	return &Processor{onPacket: onPacket}
}

// Meta returns the stream metadata once the OpusHead page has arrived.
func (p *Processor) Meta() (Meta, bool) {
	if p.meta == nil {
		return Meta{}, false
	}
	return *p.meta, true
}

// Write appends b to the internal buffer and extracts every complete page
// currently available, bailing out to wait for more data otherwise.
func (p *Processor) Write(b []byte) {
	p.buf = append(p.buf, b...)

	i := 0
	for len(p.buf) >= i+27 {
		if string(p.buf[i:i+4]) != pageMagic {
			i++
			continue
		}

		numSegments := int(p.buf[i+26])
		headerSize := 27 + numSegments

		if len(p.buf) < i+headerSize {
			return
		}

		segmentSizes := p.buf[i+27 : i+headerSize]
		segmentTotal := 0
		for _, s := range segmentSizes {
			segmentTotal += int(s)
		}
		pageSize := headerSize + segmentTotal

		if len(p.buf) < i+pageSize {
			return
		}

		page := p.buf[i : i+pageSize]
		p.handlePage(page, headerSize, segmentSizes)

		p.buf = p.buf[i+pageSize:]
		i = 0
	}
}

func (p *Processor) handlePage(page []byte, headerSize int, segmentSizes []byte) {
	if headerSize+8 <= len(page) {
		switch string(page[headerSize : headerSize+8]) {
		case headerMagic:
			p.onMetaPage(page, headerSize)
			return
		case commentMagic:
			return
		}
	}
	p.onAudioPage(page, headerSize, segmentSizes)
}

func (p *Processor) onMetaPage(page []byte, headerSize int) {
	body := page[headerSize+8:]
	if len(body) < 11 {
		return
	}

	version := body[0]
	channelCount := body[1]
	preSkip := binary.LittleEndian.Uint16(body[2:4])
	sampleRate := binary.LittleEndian.Uint32(body[4:8])
	gain := int16(binary.LittleEndian.Uint16(body[8:10]))
	channelMap := body[10]

	// Not sure why we need this, but the upstream TTS vendor's declared
	// sample rate is consistently half of what the decoder actually expects.
	sampleRate *= 2

	p.meta = &Meta{
		Version:      version,
		ChannelCount: channelCount,
		PreSkip:      preSkip,
		SampleRate:   sampleRate,
		Gain:         gain,
		ChannelMap:   channelMap,
	}
	p.haveMeta = true
}

func (p *Processor) onAudioPage(page []byte, headerSize int, segmentSizes []byte) {
	if p.onPacket == nil || !p.haveMeta {
		return
	}
	i := headerSize
	for _, s := range segmentSizes {
		end := i + int(s)
		p.onPacket(page[i:end], *p.meta)
		i = end
	}
}
