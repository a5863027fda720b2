package object

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// v2 prefix without the chunk size field: signature, version, flags.
const v2FixedPrefix = 6

// Encode serializes msgs as a single-chunk version 2 object header. When
// size is non-zero the chunk is padded with NIL messages so that the
// result is exactly size bytes; ErrTooLarge is returned if the messages do
// not fit.
func Encode(msgs []message.Message, cfg binpkg.Config, size int) ([]byte, error) {
	body, err := encodeMessages(msgs, cfg)
	if err != nil {
		return nil, err
	}

	width := fieldWidth(len(body))
	chunk := len(body)
	if size > 0 {
		width = 0
		for _, fw := range []int{1, 2, 4, 8} {
			c := size - v2FixedPrefix - fw - 4
			if c >= len(body) && fieldWidth(c) <= fw {
				width, chunk = fw, c
				break
			}
		}
		if width == 0 {
			return nil, fmt.Errorf("%w: %d bytes of messages in a %d byte header", ErrTooLarge, len(body), size)
		}
	}

	w, buf := binpkg.NewBufferWriter(cfg)
	w.WriteBytes(SignatureV2)
	w.WriteUint8(2)
	w.WriteUint8(widthCode(width))
	w.WriteUintN(uint64(chunk), width)
	w.WriteBytes(body)
	for pad := chunk - len(body); pad > 0; {
		if pad < 4 {
			w.WriteZeros(pad)
			break
		}
		n := min(pad-4, 0xff00)
		w.WriteUint8(uint8(message.TypeNIL))
		w.WriteUint16(uint16(n))
		w.WriteUint8(0)
		w.WriteZeros(n)
		pad -= n + 4
	}
	sum := binpkg.Lookup3Checksum(buf.Bytes())
	if err := w.WriteUint32(sum); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size returns the length of the smallest encoding of msgs.
func Size(msgs []message.Message, cfg binpkg.Config) (int, error) {
	body, err := encodeMessages(msgs, cfg)
	if err != nil {
		return 0, err
	}
	return v2FixedPrefix + fieldWidth(len(body)) + len(body) + 4, nil
}

func encodeMessages(msgs []message.Message, cfg binpkg.Config) ([]byte, error) {
	var out []byte
	for _, m := range msgs {
		s, ok := m.(message.Serializable)
		if !ok {
			return nil, fmt.Errorf("%w: cannot rewrite message 0x%04x", message.ErrUnsupported, uint16(m.Type()))
		}
		data, err := message.Encode(s, cfg)
		if err != nil {
			return nil, err
		}
		if len(data) > 0xffff {
			return nil, fmt.Errorf("%w: message 0x%04x is %d bytes", ErrTooLarge, uint16(m.Type()), len(data))
		}
		var flags uint8
		switch m := m.(type) {
		case *message.Unknown:
			flags = m.Flags
		case *message.Datatype:
			flags = message.FlagConstant
		}
		out = append(out, uint8(m.Type()))
		out = binary.LittleEndian.AppendUint16(out, uint16(len(data)))
		out = append(out, flags)
		out = append(out, data...)
	}
	return out, nil
}

func fieldWidth(n int) int {
	switch {
	case n <= 0xff:
		return 1
	case n <= 0xffff:
		return 2
	case n <= 0xffffffff:
		return 4
	}
	return 8
}

func widthCode(w int) uint8 {
	switch w {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}
