// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

// Function Basic Register offsets within an SDIO function register block.
const (
	FbrCsaPointerAddr = 0x09
)

// FbrCsaPointer is the 3-byte Code Storage Area pointer of an SDIO function,
// transferred LSB first: the LSB occupies bits 23:16 of the packed word, the
// middle byte bits 15:8 and the MSB bits 7:0.
type FbrCsaPointer uint32

// Lsb returns the least significant pointer byte (bits 23:16).
func (r FbrCsaPointer) Lsb() uint8 {
	return uint8(r >> 16)
}

// Mid returns the middle pointer byte (bits 15:8).
func (r FbrCsaPointer) Mid() uint8 {
	return uint8(r >> 8)
}

// Msb returns the most significant pointer byte (bits 7:0).
func (r FbrCsaPointer) Msb() uint8 {
	return uint8(r)
}

// Address assembles the 24-bit CSA byte address.
func (r FbrCsaPointer) Address() uint32 {
	return uint32(r.Msb())<<16 | uint32(r.Mid())<<8 | uint32(r.Lsb())
}
