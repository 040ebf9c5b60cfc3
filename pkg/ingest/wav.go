package ingest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// wavInfo holds the decoded parameters of a PCM WAV buffer
type wavInfo struct {
	sampleRate    int
	channels      int
	bitsPerSample int
	dataOffset    int
	dataSize      int
}

// parseWAV walks the RIFF chunk list of an in-memory WAV buffer and
// returns the format parameters and data chunk location. Only 16-bit
// PCM is accepted.
func parseWAV(data []byte) (*wavInfo, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("file too short for RIFF header")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("missing RIFF/WAVE header")
	}

	r := bytes.NewReader(data[12:])
	offset := 12
	info := &wavInfo{}

	var fmtFound bool
	var dataFound bool

	for !fmtFound || !dataFound {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			return nil, fmt.Errorf("truncated chunk list: %w", err)
		}
		offset += 8
		chunkID := string(chunkHeader[0:4])
		chunkSize := int(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d", chunkSize)
			}
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return nil, err
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported audio format: %d", audioFormat)
			}
			info.channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			info.bitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			if info.bitsPerSample != 16 {
				return nil, fmt.Errorf("unsupported bits per sample: %d", info.bitsPerSample)
			}
			if info.channels == 0 || info.sampleRate == 0 {
				return nil, fmt.Errorf("invalid fmt chunk: %d channels, %d Hz", info.channels, info.sampleRate)
			}
			offset += chunkSize
			fmtFound = true

		case "data":
			info.dataOffset = offset
			info.dataSize = chunkSize
			if info.dataOffset+info.dataSize > len(data) {
				// Tolerate a header that over-declares, clamp to real size
				info.dataSize = len(data) - info.dataOffset
			}
			if _, err := r.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				// data is the final chunk; ignore seek past end
			}
			offset += chunkSize
			dataFound = true

		default:
			// Skip unknown chunks (LIST, fact, etc.)
			if _, err := r.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("truncated %q chunk", chunkID)
			}
			offset += chunkSize
		}

		// Chunks are word-aligned
		if chunkSize%2 == 1 {
			r.Seek(1, io.SeekCurrent)
			offset++
		}
	}

	if info.dataSize <= 0 {
		return nil, fmt.Errorf("empty data chunk")
	}

	return info, nil
}

// duration computes the playback duration of the data chunk
func (w *wavInfo) duration() time.Duration {
	bytesPerSecond := w.sampleRate * w.channels * (w.bitsPerSample / 8)
	if bytesPerSecond == 0 {
		return 0
	}
	seconds := float64(w.dataSize) / float64(bytesPerSecond)
	return time.Duration(seconds * float64(time.Second))
}
