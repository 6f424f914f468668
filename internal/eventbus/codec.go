package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Первый байт кадра говорит, сжат ли JSON конверта
const (
	frameRaw  byte = 0
	frameZstd byte = 1
)

// Codec сериализует Envelope для внешних шин: JSON, опционально zstd.
// Безопасен для конкурентного использования.
type Codec struct {
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewCodec создаёт кодек. Декодер читает оба формата кадра независимо от compress.
func NewCodec(compress bool) *Codec {
	c := &Codec{compress: compress}

	// Ошибки возможны только при неверных опциях
	c.encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	c.decoder, _ = zstd.NewReader(nil)
	return c
}

// Encode сериализует конверт в кадр
func (c *Codec) Encode(ev *Envelope) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	if !c.compress {
		return append([]byte{frameRaw}, data...), nil
	}
	return c.encoder.EncodeAll(data, []byte{frameZstd}), nil
}

// Decode разбирает кадр обратно в конверт
func (c *Codec) Decode(frame []byte) (*Envelope, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	data := frame[1:]
	switch frame[0] {
	case frameRaw:
	case frameZstd:
		var err error
		data, err = c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown frame type %d", frame[0])
	}

	var ev Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
