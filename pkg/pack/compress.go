package pack

import (
	"errors"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a blob is stored. The values are part of the
// on-disk format.
type Compression uint8

const (
	// CompressionNone stores the blob as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 is LZ4 block compression, the default for binary data.
	CompressionLZ4 Compression = 1
	// CompressionZstd is zstd at the default level, used for text-like ids.
	CompressionZstd Compression = 2
)

// String returns the human-readable name of a compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// MaxEntrySize bounds the uncompressed size of a single blob.
const MaxEntrySize = math.MaxInt32

const (
	// maxLZ4Ratio is the best ratio an LZ4 block can reach.
	maxLZ4Ratio = 255
	// zstdPrealloc caps the output buffer reserved up front for a zstd blob.
	zstdPrealloc = 16
)

// errIncompressible means compression would not shrink the data.
var errIncompressible = errors.New("data is incompressible")

// textExtensions compress better with zstd.
var textExtensions = map[string]bool{
	".json": true, ".txt": true, ".md": true, ".html": true, ".css": true,
	".yaml": true, ".yml": true, ".meta": true, ".csv": true, ".xml": true,
	".toml": true, ".glsl": true, ".vert": true, ".frag": true, ".svg": true,
}

// ChooseCompression picks zstd for text-like ids and lz4 otherwise.
func ChooseCompression(id string) Compression {
	if textExtensions[strings.ToLower(path.Ext(id))] {
		return CompressionZstd
	}
	return CompressionLZ4
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("pack: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("pack: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the stored bytes and the tag actually used. Data that
// does not shrink is stored uncompressed.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	var (
		out []byte
		err error
	)
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out, err = compressLZ4(data)
	case CompressionZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression: %s", c)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, c, nil
}

// decompress reverses compress. size must match the original length.
func decompress(stored []byte, c Compression, size int) ([]byte, error) {
	if size < 0 || size > MaxEntrySize {
		return nil, fmt.Errorf("size %d out of range", size)
	}
	switch c {
	case CompressionNone:
		if len(stored) != size {
			return nil, fmt.Errorf("stored blob: size %d does not match expected %d", len(stored), size)
		}
		return stored, nil
	case CompressionLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return dst, nil
	case CompressionZstd:
		dst, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, min(size, zstdPrealloc*len(stored))))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(dst) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(dst), size)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
