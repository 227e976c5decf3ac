package gcal

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the edge length in pixels of login QR codes.
const DefaultQRSize = 256

// LoginQR encodes authURL as a PNG so the consent page can be opened on a phone.
func LoginQR(authURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(authURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode login QR: %w", err)
	}
	return png, nil
}

// WriteLoginQR writes the login QR PNG to path.
func WriteLoginQR(authURL, path string, size int) error {
	if size <= 0 {
		size = DefaultQRSize
	}
	if err := qrcode.WriteFile(authURL, qrcode.Medium, size, path); err != nil {
		return fmt.Errorf("failed to write login QR: %w", err)
	}
	return nil
}
