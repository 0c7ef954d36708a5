package util

import "fmt"

// ESC/POS control sequences used by the agent.
var (
	// DrawerKick pulses pin 2 of the drawer port: ESC p 0 t1 t2.
	DrawerKick = []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}

	AlignLeft   = []byte{0x1b, 0x61, 0x00}
	AlignCenter = []byte{0x1b, 0x61, 0x01}
	AlignRight  = []byte{0x1b, 0x61, 0x02}

	// RasterNormal is GS v 0 with m=0 (normal density).
	RasterNormal = []byte{0x1d, 0x76, 0x30, 0x00}
)

// IntLowHigh packs n into b bytes, least significant first.
func IntLowHigh(n int, b int) ([]byte, error) {
	if b < 1 || b > 4 {
		return nil, fmt.Errorf("IntLowHigh: 1-4 bytes only, got %d", b)
	}
	maxInput := 1<<(uint(b)*8) - 1
	if n < 0 || n > maxInput {
		return nil, fmt.Errorf("IntLowHigh: %d does not fit in %d bytes", n, b)
	}

	out := make([]byte, b)
	for i := 0; i < b; i++ {
		out[i] = byte(n % 256)
		n = n / 256
	}
	return out, nil
}
