package ingest

import (
	"encoding/binary"
	"testing"
	"time"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{
		MaxFileSize:      1024 * 1024,
		MaxDuration:      time.Minute,
		SupportedFormats: []string{"wav", "mp3"},
	}
}

func newValidator(t *testing.T, cfg *config.IngestConfig) *Validator {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewValidator(logger, cfg)
}

// buildWAV constructs a minimal 16-bit PCM WAV buffer with the given
// parameters and n samples of silence.
func buildWAV(sampleRate, channels, samples int) []byte {
	dataSize := samples * channels * 2
	buf := make([]byte, 0, 44+dataSize)

	buf = append(buf, []byte("RIFF")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*channels*2))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels*2))
	buf = binary.LittleEndian.AppendUint16(buf, 16)

	buf = append(buf, []byte("data")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, make([]byte, dataSize)...)

	return buf
}

func TestValidateWAV(t *testing.T) {
	v := newValidator(t, testIngestConfig())

	// One second of 16kHz mono audio
	asset, err := v.Validate(buildWAV(16000, 1, 16000), "audio/wav")
	require.NoError(t, err)

	assert.Equal(t, FormatWAV, asset.SourceFormat)
	assert.Equal(t, 16000, asset.SampleRate)
	assert.Equal(t, 1, asset.Channels)
	assert.Equal(t, time.Second, asset.Duration)
	assert.Equal(t, int64(32000), asset.Size())
}

func TestValidateEmptyUpload(t *testing.T) {
	v := newValidator(t, testIngestConfig())

	_, err := v.Validate(nil, "audio/wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestValidateOversizedUpload(t *testing.T) {
	cfg := testIngestConfig()
	cfg.MaxFileSize = 100
	v := newValidator(t, cfg)

	_, err := v.Validate(buildWAV(16000, 1, 16000), "audio/wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestValidateOverlongAudio(t *testing.T) {
	cfg := testIngestConfig()
	cfg.MaxDuration = 500 * time.Millisecond
	v := newValidator(t, cfg)

	_, err := v.Validate(buildWAV(16000, 1, 16000), "audio/wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "duration")
}

func TestValidateDisabledFormat(t *testing.T) {
	cfg := testIngestConfig()
	cfg.SupportedFormats = []string{"mp3"}
	v := newValidator(t, cfg)

	_, err := v.Validate(buildWAV(16000, 1, 16000), "audio/wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestValidateCorruptWAV(t *testing.T) {
	v := newValidator(t, testIngestConfig())

	corrupt := buildWAV(16000, 1, 100)[:20]
	_, err := v.Validate(corrupt, "audio/wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestValidateGarbage(t *testing.T) {
	v := newValidator(t, testIngestConfig())

	_, err := v.Validate([]byte("definitely not audio"), "text/plain")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "unrecognized audio format")
}

func TestValidateMP3(t *testing.T) {
	v := newValidator(t, testIngestConfig())

	// MPEG1 Layer III, 128kbit/s, 44.1kHz, stereo frame header followed
	// by enough payload for a measurable duration estimate.
	frame := []byte{0xff, 0xfb, 0x90, 0x00}
	payload := append(frame, make([]byte, 16000)...)

	asset, err := v.Validate(payload, "audio/mpeg")
	require.NoError(t, err)

	assert.Equal(t, FormatMP3, asset.SourceFormat)
	assert.Equal(t, 44100, asset.SampleRate)
	assert.Equal(t, 2, asset.Channels)
	assert.Greater(t, asset.Duration, time.Duration(0))
}

func TestDetectFormat(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		mime     string
		expected SourceFormat
	}{
		{"wav magic", buildWAV(8000, 1, 10), "", FormatWAV},
		{"id3 prefix", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), "", FormatMP3},
		{"frame sync", []byte{0xff, 0xfb, 0x90, 0x00}, "", FormatMP3},
		{"mime fallback wav", []byte{0x00, 0x01, 0x02, 0x03}, "audio/wav", FormatWAV},
		{"mime fallback mp3", []byte{0x00, 0x01, 0x02, 0x03}, "audio/mpeg", FormatMP3},
		{"unknown", []byte{0x00, 0x01, 0x02, 0x03}, "application/pdf", SourceFormat("")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, detectFormat(tc.data, tc.mime))
		})
	}
}

func TestParseWAVSkipsUnknownChunks(t *testing.T) {
	// WAV with a LIST chunk between fmt and data
	base := buildWAV(8000, 1, 100)
	withList := make([]byte, 0, len(base)+12)
	withList = append(withList, base[:36]...)
	withList = append(withList, []byte("LIST")...)
	withList = binary.LittleEndian.AppendUint32(withList, 4)
	withList = append(withList, []byte("INFO")...)
	withList = append(withList, base[36:]...)
	binary.LittleEndian.PutUint32(withList[4:8], uint32(len(withList)-8))

	info, err := parseWAV(withList)
	require.NoError(t, err)
	assert.Equal(t, 8000, info.sampleRate)
	assert.Equal(t, 200, info.dataSize)
}
