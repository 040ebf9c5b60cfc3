package ingest

import (
	"fmt"
	"time"
)

// mp3Info holds the parameters sniffed from an MP3 stream
type mp3Info struct {
	sampleRate int
	channels   int
	bitrate    int // bits per second
	audioBytes int
}

// MPEG1 Layer III bitrates in kbit/s, indexed by the frame header field
var mp3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

// MPEG1 sample rates in Hz
var mp3SampleRates = [4]int{44100, 48000, 32000, 0}

// parseMP3 locates the first valid MPEG frame header, skipping any
// leading ID3v2 tag, and derives stream parameters from it. Duration is
// an estimate from the first frame's bitrate, which is exact for CBR
// files and approximate for VBR.
func parseMP3(data []byte) (*mp3Info, error) {
	offset := 0

	// Skip ID3v2 tag if present: "ID3" + version(2) + flags(1) + syncsafe size(4)
	if len(data) >= 10 && data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		offset = 10 + size
		if offset >= len(data) {
			return nil, fmt.Errorf("ID3 tag spans entire file")
		}
	}

	// Find frame sync: 11 set bits
	for ; offset+4 <= len(data); offset++ {
		if data[offset] == 0xff && data[offset+1]&0xe0 == 0xe0 {
			info, err := parseMP3FrameHeader(data[offset : offset+4])
			if err != nil {
				continue
			}
			info.audioBytes = len(data) - offset
			return info, nil
		}
	}

	return nil, fmt.Errorf("no valid MPEG frame header found")
}

func parseMP3FrameHeader(h []byte) (*mp3Info, error) {
	version := (h[1] >> 3) & 0x03
	layer := (h[1] >> 1) & 0x03

	// Only MPEG1 (version=3) Layer III (layer=1) is parsed; other
	// variants are rare for uploaded speech and rejected here.
	if version != 3 || layer != 1 {
		return nil, fmt.Errorf("unsupported MPEG version/layer")
	}

	bitrateIndex := (h[2] >> 4) & 0x0f
	sampleRateIndex := (h[2] >> 2) & 0x03

	bitrate := mp3Bitrates[bitrateIndex] * 1000
	sampleRate := mp3SampleRates[sampleRateIndex]
	if bitrate == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("invalid bitrate or sample rate index")
	}

	channelMode := (h[3] >> 6) & 0x03
	channels := 2
	if channelMode == 3 {
		channels = 1
	}

	return &mp3Info{
		sampleRate: sampleRate,
		channels:   channels,
		bitrate:    bitrate,
	}, nil
}

// duration estimates the playback duration from stream size and bitrate
func (m *mp3Info) duration() time.Duration {
	if m.bitrate == 0 {
		return 0
	}
	seconds := float64(m.audioBytes*8) / float64(m.bitrate)
	return time.Duration(seconds * float64(time.Second))
}
