package journal

import "testing"

func TestCodecRoundTrip(t *testing.T) {
	var c EventCodec
	e := &Event{Kind: ImportFinish, Payload: []byte("hello world")}

	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind != e.Kind {
		t.Fatalf("kind mismatch: got %v want %v", decoded.Kind, e.Kind)
	}
	if string(decoded.Payload) != string(e.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", decoded.Payload, e.Payload)
	}
}

func TestCodecDecodeRejectsTruncated(t *testing.T) {
	var c EventCodec
	e := &Event{Kind: Other, Payload: []byte("abc")}
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := c.Decode(data[:len(data)-2]); err != ErrCorruptEvent {
		t.Fatalf("expected ErrCorruptEvent on truncation, got %v", err)
	}
}

func TestCodecDecodeRejectsBadChecksum(t *testing.T) {
	var c EventCodec
	e := &Event{Kind: Other, Payload: []byte("abc")}
	data, err := c.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[len(data)-1] ^= 0xFF

	if _, err := c.Decode(data); err != ErrCorruptEvent {
		t.Fatalf("expected ErrCorruptEvent on bad checksum, got %v", err)
	}
}

func TestCodecDecodeRejectsBadMagic(t *testing.T) {
	var c EventCodec
	data := []byte{0x00, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := c.Decode(data); err != ErrCorruptEvent {
		t.Fatalf("expected ErrCorruptEvent on bad magic, got %v", err)
	}
}
