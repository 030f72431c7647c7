package bundle

import (
	"bytes"
	"testing"
)

func TestBundleRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0xAC, 0x02}
	b := New("demo", payload)

	if err := b.Verify(); err != nil {
		t.Fatalf("fresh bundle fails Verify: %v", err)
	}
	if b.ID == "" {
		t.Error("bundle has no ID")
	}

	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Name != "demo" || got.ID != b.ID || got.Hash != b.Hash {
		t.Errorf("metadata changed: %+v", got)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("payload changed: % X", got.Payload)
	}
	if err := got.Verify(); err != nil {
		t.Errorf("round-tripped bundle fails Verify: %v", err)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	b := New("demo", []byte("payload bytes"))
	b.Payload[0] ^= 0xFF
	if err := b.Verify(); err == nil {
		t.Error("Verify accepted a corrupted payload")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	b := New("demo", []byte("same"))
	d1, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1, d2) {
		t.Error("canonical encoding is not deterministic")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF, 0x00, 0x13}); err == nil {
		t.Error("Unmarshal accepted garbage")
	}
}
