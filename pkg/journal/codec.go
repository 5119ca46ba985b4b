package journal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// eventMagic tags the start of every encoded event so a reader that landed
// mid-stream (or after truncation) can tell a real header from garbage.
const eventMagic uint16 = 0x4A4C // "JL"

// EventCodec encodes and decodes events with a header carrying the event
// kind (spec.md §2, "EventCodec"). The wire format is magic + kind byte +
// length-prefixed payload + a trailing CRC32 over kind, length and payload, the same
// magic-plus-length-prefixed-fields shape the reference codec uses for its
// message batches.
type EventCodec struct{}

// Encode serializes e into bytes suitable for Stream.AppendEntry.
func (EventCodec) Encode(e *Event) ([]byte, error) {
	if len(e.Payload) > 0xFFFFFFFF {
		return nil, fmt.Errorf("journal: payload too large: %d bytes", len(e.Payload))
	}

	var buf bytes.Buffer
	write := func(v any) error {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return fmt.Errorf("journal: encode event failed: %w", err)
		}
		return nil
	}

	if err := write(eventMagic); err != nil {
		return nil, err
	}
	if err := write(uint8(e.Kind)); err != nil {
		return nil, err
	}
	if err := write(uint32(len(e.Payload))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(e.Payload); err != nil {
		return nil, fmt.Errorf("journal: write payload failed: %w", err)
	}

	checksum := crc32.ChecksumIEEE(buf.Bytes()[2:])
	if err := write(checksum); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. It returns ErrCorruptEvent (never
// wrapped further) on any structural or checksum failure, so replay can
// treat every decode failure uniformly (spec.md §4.3 step 4, §7).
func (EventCodec) Decode(data []byte) (*Event, error) {
	const headerLen = 2 + 1 + 4 // magic + kind + length
	if len(data) < headerLen+4 {
		return nil, ErrCorruptEvent
	}

	reader := bytes.NewReader(data)

	var magic uint16
	if err := binary.Read(reader, binary.BigEndian, &magic); err != nil || magic != eventMagic {
		return nil, ErrCorruptEvent
	}

	var kind uint8
	if err := binary.Read(reader, binary.BigEndian, &kind); err != nil {
		return nil, ErrCorruptEvent
	}

	var payloadLen uint32
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, ErrCorruptEvent
	}
	if int(payloadLen) < 0 || headerLen+int(payloadLen)+4 > len(data) {
		return nil, ErrCorruptEvent
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, ErrCorruptEvent
	}

	var checksum uint32
	if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
		return nil, ErrCorruptEvent
	}
	if crc32.ChecksumIEEE(data[2:headerLen+int(payloadLen)]) != checksum {
		return nil, ErrCorruptEvent
	}

	return &Event{Kind: Kind(kind), Payload: payload}, nil
}
