// Package qrcode turns payment payloads into scannable PNG images.
package qrcode

import (
	"errors"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

var ErrEncoderUnavailable = errors.New("qr encoder unavailable")

// Encoder renders text as an image. Callers treat ErrEncoderUnavailable as
// "no image" and carry on.
type Encoder interface {
	Encode(text string) ([]byte, error)
}

// PNGEncoder encodes with medium error correction.
type PNGEncoder struct {
	Size int
}

func NewPNGEncoder(size int) *PNGEncoder {
	if size <= 0 {
		size = 256
	}
	return &PNGEncoder{Size: size}
}

func (e *PNGEncoder) Encode(text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("qr payload is empty")
	}
	png, err := goqrcode.Encode(text, goqrcode.Medium, e.Size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// Unavailable is the encoder used when QR images are switched off.
type Unavailable struct{}

func (Unavailable) Encode(string) ([]byte, error) { return nil, ErrEncoderUnavailable }

// PaymentPayload is the text a QR payment image carries.
func PaymentPayload(brand, reference string, appointmentID int64) string {
	return fmt.Sprintf("%s|ref:%s|id:%d", brand, reference, appointmentID)
}
