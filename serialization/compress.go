package serialization

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// EncodingZstd is the content-encoding value for zstd-compressed bodies.
// It travels in the engine's native content-encoding slot and is a wire
// constant: changing it breaks mixed-version deployments.
const EncodingZstd = "zstd"

// zstdEncoder and zstdDecoder are reused across calls to avoid repeated
// initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("serialization: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("serialization: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBody compresses raw with zstd. The bool is false when the
// compressed form is not smaller than the input; callers then send raw.
func compressBody(raw []byte) ([]byte, bool) {
	compressed := zstdEncoder.EncodeAll(raw, nil)
	if len(compressed) >= len(raw) {
		return raw, false
	}
	return compressed, true
}

// decompressBody reverses compressBody.
func decompressBody(compressed []byte) ([]byte, error) {
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("serialization: zstd decompress: %w", err)
	}
	return raw, nil
}
