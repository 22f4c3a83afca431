package qrcode

import (
	"bytes"
	"errors"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestPNGEncoder_Encode(t *testing.T) {
	enc := NewPNGEncoder(0)
	if enc.Size != 256 {
		t.Errorf("expected default size 256, got %d", enc.Size)
	}
	png, err := enc.Encode(PaymentPayload("LimaMedic", "a1b2c3d4e5f6", 1714550400000))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Error("expected PNG output")
	}
}

func TestPNGEncoder_EmptyPayload(t *testing.T) {
	if _, err := NewPNGEncoder(128).Encode(""); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestUnavailable(t *testing.T) {
	var enc Encoder = Unavailable{}
	if _, err := enc.Encode("x"); !errors.Is(err, ErrEncoderUnavailable) {
		t.Errorf("expected ErrEncoderUnavailable, got %v", err)
	}
}

func TestPaymentPayload(t *testing.T) {
	got := PaymentPayload("LimaMedic", "abc123", 42)
	if got != "LimaMedic|ref:abc123|id:42" {
		t.Errorf("unexpected payload %q", got)
	}
}
