// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

// R1 response bits.
const (
	r1Idle           = 1 << 0
	r1EraseReset     = 1 << 1
	r1IllegalCommand = 1 << 2
	r1CommandCrc     = 1 << 3
	r1EraseSequence  = 1 << 4
	r1Address        = 1 << 5
	r1Parameter      = 1 << 6
	// The MSB of a valid R1 is the start bit and reads back as zero; while
	// the card has not answered yet the line idles high and the bit is set.
	r1Error = 1 << 7
)

// Data tokens.
const (
	tokenStartBlock       = 0xFE // single block read/write and multi block read
	tokenStartMultiWrite  = 0xFC // multi block write
	tokenStopTransmission = 0xFD // terminates a multi block write
)

// Data error token bits. A token with a zero upper nibble is an error token.
const (
	errTokenError      = 1 << 0
	errTokenCc         = 1 << 1
	errTokenCardEcc    = 1 << 2
	errTokenOutOfRange = 1 << 3
	errTokenCardLocked = 1 << 4
)

// Data response token codes, bits 3:1 of the 0bxxx0xxx1 response byte.
const (
	writeResponseAccepted   = 0x2
	writeResponseCrcError   = 0x5
	writeResponseWriteError = 0x6
)

// CRC7 computes the SD command CRC over data and returns it shifted left by
// one with the end bit set, ready to terminate a command frame.
func CRC7(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			crc <<= 1
			if (b<<i&0x80)^(crc&0x80) != 0 {
				crc ^= 0x09
			}
		}
	}
	return crc<<1 | 1
}
