// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

// Transfer rate unit codes, in units of 10 kbit/s.
var transUnits = [7]uint32{10, 100, 1_000, 10_000, 0, 0, 0}

// Transfer rate multiplier codes, in tenths. The SD and MMC tables differ at
// entries 6 and 11.
var (
	sdTransMultipliers  = [16]uint32{0, 10, 12, 13, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 70, 80}
	mmcTransMultipliers = [16]uint32{0, 10, 12, 13, 15, 20, 26, 30, 35, 40, 45, 52, 55, 60, 70, 80}
)

// SdTransferRateHz decodes a TRAN_SPEED byte with the SD multiplier table
// and returns the maximum transfer rate in Hz. SDIO tuple speed codes use
// the same encoding.
func SdTransferRateHz(transSpeed uint8) uint32 {
	unit := transUnits[transSpeed&0x7]
	mult := sdTransMultipliers[(transSpeed>>3)&0xF]
	return unit * mult * 1000
}

// MmcTransferRateHz decodes a TRAN_SPEED byte with the MMC multiplier table
// and returns the maximum transfer rate in Hz.
func MmcTransferRateHz(transSpeed uint8) uint32 {
	unit := transUnits[transSpeed&0x7]
	mult := mmcTransMultipliers[(transSpeed>>3)&0xF]
	return unit * mult * 1000
}
