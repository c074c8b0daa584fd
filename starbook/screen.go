package starbook

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrUnsupportedFormat reports a framebuffer dump that is not the
// expected 12-bit packed 320x240 layout.
var ErrUnsupportedFormat = errors.New("starbook: unsupported framebuffer format")

const (
	ScreenWidth  = 320
	ScreenHeight = 240
	// screenBytes is 320*240 pixels at 12 bits each.
	screenBytes = ScreenWidth * ScreenHeight * 3 / 2
)

// DecodeScreen unpacks the device's 12-bit framebuffer dump into an
// RGBA raster. Each byte triplet (W0,W1,W2) holds two pixels with the
// R,G,B nibbles interleaved; every nibble is promoted to a full byte by
// a left shift of four, matching the device's native precision exactly.
func DecodeScreen(raw []byte) (*image.RGBA, error) {
	if len(raw) != screenBytes {
		return nil, fmt.Errorf("%w: %d bytes (want %d)", ErrUnsupportedFormat, len(raw), screenBytes)
	}
	img := image.NewRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight))
	for i := 0; i < len(raw)/3; i++ {
		w0, w1, w2 := raw[3*i], raw[3*i+1], raw[3*i+2]
		o := 8 * i // two 4-byte pixels per triplet
		img.Pix[o+0] = w0 & 0xF0
		img.Pix[o+1] = (w0 & 0x0F) << 4
		img.Pix[o+2] = w1 & 0xF0
		img.Pix[o+3] = 0xFF
		img.Pix[o+4] = (w1 & 0x0F) << 4
		img.Pix[o+5] = w2 & 0xF0
		img.Pix[o+6] = (w2 & 0x0F) << 4
		img.Pix[o+7] = 0xFF
	}
	return img, nil
}

// Screen fetches and decodes the device's current display. In simulate
// mode a synthetic raster stands in for the hardware framebuffer.
func (s *Session) Screen(ctx context.Context) (*image.RGBA, error) {
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	s.mu.Unlock()
	if sim {
		return DecodeScreen(simScreen())
	}
	raw, err := t.SendRaw(ctx, "getscreen.bin")
	if err != nil {
		return nil, err
	}
	return DecodeScreen(raw)
}

// simScreen renders a gradient test raster in the device's packed
// format.
func simScreen() []byte {
	raw := make([]byte, screenBytes)
	for i := range raw {
		raw[i] = byte(i / ScreenWidth)
	}
	return raw
}
