// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

// Scr is the 64-bit SD Configuration Register. Byte 0 carries bits 63:56.
type Scr [8]byte

// SD_SPEC values (SCR bits 59:56).
const (
	SdSpec1_01 = 0
	SdSpec1_10 = 1
	SdSpec2_00 = 2
)

// ScrFromBytes copies the 8-byte ACMD51 data block.
func ScrFromBytes(b []byte) Scr {
	var s Scr
	copy(s[:], b)
	return s
}

// SdSpec returns the physical layer specification version field.
func (s Scr) SdSpec() uint8 {
	return s[0] & 0xF
}

// BusWidths returns the DAT bus widths supported field (bits 51:48), one bit
// per width: bit 0 for 1 bit, bit 2 for 4 bit.
func (s Scr) BusWidths() uint8 {
	return s[1] & 0xF
}

// Supports4Bit reports 4-bit bus support.
func (s Scr) Supports4Bit() bool {
	return s.BusWidths()&(1<<2) != 0
}
