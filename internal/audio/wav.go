package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	riffChunkID   = "RIFF"
	waveFormat    = "WAVE"
	fmtChunkID    = "fmt "
	dataChunkID   = "data"
	formatPCM     = 1
	formatFloat   = 3
	formatExtend  = 0xFFFE
	pcm16Scale    = 32768.0
	pcm16MaxValue = 32767
	wavHeaderSize = 44

	fmtBaseSize       = 16
	fmtExtensibleSize = 40
	maxFmtChunkSize   = 1024
	subFormatOffset   = 24
)

// subFormatGUIDSuffix is the fixed tail of the KSDATAFORMAT_SUBTYPE GUIDs;
// the first two bytes carry the format code.
var subFormatGUIDSuffix = []byte{
	0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71,
}

var (
	// ErrNotWAV indicates a stream without a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a RIFF/WAVE stream")
	// ErrUnsupportedEncoding indicates a WAV sample encoding that cannot be decoded.
	ErrUnsupportedEncoding = errors.New("unsupported WAV encoding")
	// ErrMissingChunk indicates a WAV stream without fmt or data chunk.
	ErrMissingChunk = errors.New("missing WAV chunk")
)

// Buffer is a decoded waveform. Channels holds one slice per channel, each
// sample scaled to [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV reads a PCM (8/16/24/32 bit) or IEEE float WAV stream.
func DecodeWAV(reader io.Reader) (*Buffer, error) {
	var header [12]byte

	_, readErr := io.ReadFull(reader, header[:])
	if readErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotWAV, readErr)
	}

	if string(header[0:4]) != riffChunkID || string(header[8:12]) != waveFormat {
		return nil, ErrNotWAV
	}

	var (
		format  *fmtChunk
		payload []byte
	)

	for payload == nil {
		var chunkHeader [8]byte

		_, readErr = io.ReadFull(reader, chunkHeader[:])
		if readErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingChunk, dataChunkID)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch chunkID {
		case fmtChunkID:
			parsed, parseErr := readFmtChunk(reader, chunkSize)
			if parseErr != nil {
				return nil, parseErr
			}

			format = parsed
		case dataChunkID:
			if format == nil {
				return nil, fmt.Errorf("%w: %s", ErrMissingChunk, fmtChunkID)
			}

			// Grows with what is actually read; a truncated data chunk is accepted.
			body, dataErr := io.ReadAll(io.LimitReader(reader, chunkSize))
			if dataErr != nil {
				return nil, fmt.Errorf("failed to read %q chunk: %w", chunkID, dataErr)
			}

			payload = body
		default:
			skipErr := skipChunk(reader, chunkID, chunkSize)
			if skipErr != nil {
				return nil, skipErr
			}
		}
	}

	return decodeSamples(format, payload)
}

// readFmtChunk parses a fmt chunk. For WAVE_FORMAT_EXTENSIBLE the audio format
// is replaced by the format code of the subformat GUID.
func readFmtChunk(reader io.Reader, size int64) (*fmtChunk, error) {
	if size < fmtBaseSize || size > maxFmtChunkSize {
		return nil, fmt.Errorf("%w: fmt chunk of %d bytes", ErrUnsupportedEncoding, size)
	}

	body := make([]byte, size+size%2)

	_, readErr := io.ReadFull(reader, body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read %q chunk: %w", fmtChunkID, readErr)
	}

	parsed := fmtChunk{}

	parseErr := binary.Read(bytes.NewReader(body[:fmtBaseSize]), binary.LittleEndian, &parsed)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse fmt chunk: %w", parseErr)
	}

	if parsed.AudioFormat != formatExtend {
		return &parsed, nil
	}

	if size < fmtExtensibleSize {
		return nil, fmt.Errorf("%w: extensible fmt chunk of %d bytes", ErrUnsupportedEncoding, size)
	}

	subFormat := body[subFormatOffset : subFormatOffset+16]
	if !bytes.Equal(subFormat[2:], subFormatGUIDSuffix) {
		return nil, fmt.Errorf("%w: unknown extensible subformat", ErrUnsupportedEncoding)
	}

	parsed.AudioFormat = binary.LittleEndian.Uint16(subFormat[0:2])

	return &parsed, nil
}

// skipChunk discards a chunk without buffering it. RIFF chunks are word aligned.
func skipChunk(reader io.Reader, chunkID string, size int64) error {
	padded := size + size%2

	skipped, copyErr := io.CopyN(io.Discard, reader, padded)
	if copyErr != nil && !(errors.Is(copyErr, io.EOF) && skipped >= size) {
		return fmt.Errorf("failed to read %q chunk: %w", chunkID, copyErr)
	}

	return nil
}

func decodeSamples(format *fmtChunk, payload []byte) (*Buffer, error) {
	channels := int(format.NumChannels)
	bytesPerSample := int(format.BitsPerSample) / 8

	if channels == 0 || bytesPerSample == 0 {
		return nil, fmt.Errorf("%w: %d channels, %d bits", ErrUnsupportedEncoding, channels, format.BitsPerSample)
	}

	decode, decodeErr := sampleDecoder(format.AudioFormat, format.BitsPerSample)
	if decodeErr != nil {
		return nil, decodeErr
	}

	frameSize := channels * bytesPerSample
	frames := len(payload) / frameSize

	buffer := &Buffer{
		SampleRate: int(format.SampleRate),
		Channels:   make([][]float64, channels),
	}

	for channel := range buffer.Channels {
		buffer.Channels[channel] = make([]float64, frames)
	}

	for frame := range frames {
		for channel := range channels {
			offset := frame*frameSize + channel*bytesPerSample
			buffer.Channels[channel][frame] = decode(payload[offset : offset+bytesPerSample])
		}
	}

	return buffer, nil
}

func sampleDecoder(audioFormat, bits uint16) (func([]byte) float64, error) {
	switch {
	case audioFormat == formatFloat && bits == 32:
		return func(raw []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
		}, nil
	case audioFormat != formatPCM:
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, audioFormat)
	}

	switch bits {
	case 8:
		return func(raw []byte) float64 { return (float64(raw[0]) - 128) / 128 }, nil
	case 16:
		return func(raw []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(raw))) / pcm16Scale
		}, nil
	case 24:
		return func(raw []byte) float64 {
			value := int32(raw[0]) | int32(raw[1])<<8 | int32(int8(raw[2]))<<16

			return float64(value) / (1 << 23)
		}, nil
	case 32:
		return func(raw []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(raw))) / (1 << 31)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedEncoding, bits)
	}
}

// EncodeWAV writes a mono 16-bit PCM WAV stream. Samples outside [-1, 1] are clipped.
func EncodeWAV(writer io.Writer, samples []float64, sampleRate int) error {
	dataSize := uint32(len(samples) * 2)

	header := make([]byte, 0, wavHeaderSize)
	header = append(header, riffChunkID...)
	header = binary.LittleEndian.AppendUint32(header, 36+dataSize)
	header = append(header, waveFormat...)
	header = append(header, fmtChunkID...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, formatPCM)
	header = binary.LittleEndian.AppendUint16(header, 1)
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate*2))
	header = binary.LittleEndian.AppendUint16(header, 2)
	header = binary.LittleEndian.AppendUint16(header, 16)
	header = append(header, dataChunkID...)
	header = binary.LittleEndian.AppendUint32(header, dataSize)

	_, writeErr := writer.Write(header)
	if writeErr != nil {
		return fmt.Errorf("failed to write WAV header: %w", writeErr)
	}

	_, writeErr = writer.Write(PCM16(samples))
	if writeErr != nil {
		return fmt.Errorf("failed to write WAV samples: %w", writeErr)
	}

	return nil
}

// PCM16 encodes samples as little-endian signed 16-bit PCM without a header.
// Samples outside [-1, 1] are clipped.
func PCM16(samples []float64) []byte {
	body := make([]byte, 0, len(samples)*2)
	for _, sample := range samples {
		clipped := math.Max(-1, math.Min(1, sample))
		body = binary.LittleEndian.AppendUint16(body, uint16(int16(math.Round(clipped*pcm16MaxValue))))
	}

	return body
}
