package sqlitestore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is how a file blob is stored at rest. The tag is persisted per
// row, so changing the configured codec never strands existing data.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecZstd Codec = 1
	CodecLZ4  Codec = 2
)

var ErrUnknownCodec = errors.New("sqlitestore: unknown compression codec")

// ErrCorrupt is returned when a stored blob fails to decode.
var ErrCorrupt = errors.New("sqlitestore: corrupt file blob")

var errIncompressible = errors.New("sqlitestore: data is incompressible")

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	case "none", "off":
		return CodecNone, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("sqlitestore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("sqlitestore: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the stored form of data and the codec actually used.
// Data that does not shrink is stored raw.
func compress(c Codec, data []byte) ([]byte, Codec, error) {
	if len(data) == 0 || c == CodecNone {
		return data, CodecNone, nil
	}
	var (
		out []byte
		err error
	)
	switch c {
	case CodecZstd:
		out = zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			err = errIncompressible
		}
	case CodecLZ4:
		out, err = compressLZ4(data)
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
	if errors.Is(err, errIncompressible) {
		return data, CodecNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, c, nil
}

func decompress(c Codec, stored []byte, size int) ([]byte, error) {
	switch c {
	case CodecNone:
		if len(stored) != size {
			return nil, fmt.Errorf("sqlitestore: raw blob is %d bytes, expected %d", len(stored), size)
		}
		return stored, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("sqlitestore: zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	case CodecLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("sqlitestore: lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}
