package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAV format codes from the fmt chunk. Anything else is rejected.
const (
	formatPCM        = 1      // integer PCM (8/16/24/32 bit)
	formatIEEEFloat  = 3      // 32-bit IEEE float
	formatExtensible = 0xFFFE // format stored in the extension sub-format GUID
)

// ErrNotWAV is returned by [DecodeWAV] when the payload does not start with
// a RIFF/WAVE header. Callers can use this to distinguish "not audio at all"
// from a damaged WAV file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// wavFormat holds the fields of the fmt chunk that decoding needs.
type wavFormat struct {
	format        uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE container and returns the decoded samples as
// interleaved float32 values in [-1.0, 1.0]. Supported encodings are integer
// PCM at 8, 16, 24, and 32 bits per sample and 32-bit IEEE float, with any
// channel count. Unknown chunks (LIST, fact, cue, ...) are skipped.
//
// Any structural problem — wrong magic, truncated chunks, missing fmt or
// data, unsupported encoding — is reported as an error; the caller decides
// whether that is a client fault.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		format  *wavFormat
		pcmData []byte
	)

	// Walk the chunk list. Each chunk is an 8-byte header (id + size)
	// followed by size bytes, padded to an even offset.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			return nil, fmt.Errorf("audio: truncated %q chunk: declared %d bytes, %d available", id, size, len(data)-body)
		}

		switch id {
		case "fmt ":
			f, err := parseFmtChunk(data[body : body+size])
			if err != nil {
				return nil, err
			}
			format = f
		case "data":
			pcmData = data[body : body+size]
		}

		offset = body + size
		if size%2 != 0 {
			offset++ // pad byte
		}
	}

	if format == nil {
		return nil, errors.New("audio: missing fmt chunk")
	}
	if pcmData == nil {
		return nil, errors.New("audio: missing data chunk")
	}

	samples, err := decodeSamples(pcmData, format)
	if err != nil {
		return nil, err
	}

	return &Clip{
		Samples:    samples,
		SampleRate: format.sampleRate,
		Channels:   format.channels,
	}, nil
}

// parseFmtChunk decodes the fmt chunk body and validates the fields this
// decoder supports.
func parseFmtChunk(body []byte) (*wavFormat, error) {
	if len(body) < 16 {
		return nil, fmt.Errorf("audio: fmt chunk too small: %d bytes", len(body))
	}

	f := &wavFormat{
		format:        binary.LittleEndian.Uint16(body[0:2]),
		channels:      int(binary.LittleEndian.Uint16(body[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
	}

	// WAVE_FORMAT_EXTENSIBLE stores the real format code in the first two
	// bytes of the sub-format GUID at offset 24 of the chunk body.
	if f.format == formatExtensible {
		if len(body) < 26 {
			return nil, errors.New("audio: extensible fmt chunk missing sub-format")
		}
		f.format = binary.LittleEndian.Uint16(body[24:26])
	}

	if f.channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", f.channels)
	}
	if f.sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", f.sampleRate)
	}

	switch f.format {
	case formatPCM:
		switch f.bitsPerSample {
		case 8, 16, 24, 32:
		default:
			return nil, fmt.Errorf("audio: unsupported PCM bit depth %d", f.bitsPerSample)
		}
	case formatIEEEFloat:
		if f.bitsPerSample != 32 {
			return nil, fmt.Errorf("audio: unsupported float bit depth %d", f.bitsPerSample)
		}
	default:
		return nil, fmt.Errorf("audio: unsupported format code %d (want PCM or IEEE float)", f.format)
	}

	return f, nil
}

// decodeSamples converts the raw data chunk into float32 samples according
// to the fmt chunk. Trailing bytes that do not form a complete sample are
// ignored.
func decodeSamples(raw []byte, f *wavFormat) ([]float32, error) {
	bytesPerSample := f.bitsPerSample / 8
	n := len(raw) / bytesPerSample
	samples := make([]float32, n)

	switch {
	case f.format == formatIEEEFloat:
		for i := range n {
			bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
			samples[i] = math.Float32frombits(bits)
		}
	case f.bitsPerSample == 8:
		// 8-bit WAV is unsigned with a 128 midpoint.
		for i := range n {
			samples[i] = (float32(raw[i]) - 128.0) / 128.0
		}
	case f.bitsPerSample == 16:
		for i := range n {
			s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			samples[i] = float32(s) / 32768.0
		}
	case f.bitsPerSample == 24:
		for i := range n {
			b := raw[i*3 : i*3+3]
			s := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if s&0x800000 != 0 {
				s |= ^int32(0xFFFFFF) // sign-extend
			}
			samples[i] = float32(s) / 8388608.0
		}
	case f.bitsPerSample == 32:
		for i := range n {
			s := int32(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
			samples[i] = float32(float64(s) / 2147483648.0)
		}
	default:
		return nil, fmt.Errorf("audio: unsupported bit depth %d", f.bitsPerSample)
	}

	return samples, nil
}

// EncodeWAV wraps mono float32 samples in a 16-bit PCM RIFF/WAVE container.
// Values outside [-1.0, 1.0] are clamped. Used by tests and debugging tools;
// the service itself only decodes.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767.0)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(v))
	}

	return buf
}
