// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

// Card Common Control Register addresses in the SDIO function 0 bank.
const (
	CccrSdSpecAddr        = 0x01
	CccrIoEnableAddr      = 0x02
	CccrBusInterfaceAddr  = 0x07
	CccrCardCapabilityAddr = 0x08
	CccrCisPointerAddr    = 0x09
	CccrBlockSizeAddr     = 0x10
	CccrPowerControlAddr  = 0x12
	CccrHighSpeedAddr     = 0x13
)

// CccrSdSpec is the SD physical specification byte at CCCR 0x01.
type CccrSdSpec uint8

// Revision returns the SD format version field, encoded like Scr.SdSpec.
func (r CccrSdSpec) Revision() uint8 {
	return uint8(r) & 0xF
}

// CccrIoEnable is the function enable byte at CCCR 0x02, one bit per
// function 1 through 7.
type CccrIoEnable uint8

// FunctionEnabled reports whether function n (1..7) is enabled.
func (r CccrIoEnable) FunctionEnabled(n uint8) bool {
	return r&(1<<n) != 0
}

// SetFunctionEnabled returns the register with function n (1..7) enabled or
// disabled.
func (r CccrIoEnable) SetFunctionEnabled(n uint8, enabled bool) CccrIoEnable {
	if enabled {
		return r | 1<<n
	}
	return r &^ (1 << n)
}

// SdioBusWidth codes used by the bus interface control register.
type SdioBusWidth uint8

const (
	SdioBus1Bit SdioBusWidth = 0b00
	SdioBus4Bit SdioBusWidth = 0b10
)

// CccrBusInterface is the bus interface control byte at CCCR 0x07.
type CccrBusInterface uint8

// BusWidth returns the configured bus width code (bits 1:0).
func (r CccrBusInterface) BusWidth() SdioBusWidth {
	return SdioBusWidth(r & 0b11)
}

// SetBusWidth returns the register with the bus width code replaced.
func (r CccrBusInterface) SetBusWidth(w SdioBusWidth) CccrBusInterface {
	return (r &^ 0b11) | CccrBusInterface(w)
}

// CardDetectDisabled reports the CD pull-up disable bit (bit 7).
func (r CccrBusInterface) CardDetectDisabled() bool {
	return r&(1<<7) != 0
}

// CccrCardCapability is the capability byte at CCCR 0x08.
type CccrCardCapability uint8

// LowSpeedCard reports the LSC bit: the card is a low speed SDIO card.
func (r CccrCardCapability) LowSpeedCard() bool {
	return r&(1<<6) != 0
}

// LowSpeed4Bit reports the 4BLS bit: a low speed card that still supports
// the 4-bit bus.
func (r CccrCardCapability) LowSpeed4Bit() bool {
	return r&(1<<7) != 0
}

// Supports4Bit reports whether the card may be switched to the 4-bit bus.
// Full speed SDIO cards always support it; low speed cards only with 4BLS.
func (r CccrCardCapability) Supports4Bit() bool {
	return !r.LowSpeedCard() || r.LowSpeed4Bit()
}

// CccrPowerControl is the power control byte at CCCR 0x12.
type CccrPowerControl uint8

// SupportsMasterPowerControl reports the SMPC bit.
func (r CccrPowerControl) SupportsMasterPowerControl() bool {
	return r&(1<<0) != 0
}

// MasterPowerControlEnabled reports the EMPC bit.
func (r CccrPowerControl) MasterPowerControlEnabled() bool {
	return r&(1<<1) != 0
}

// SetMasterPowerControl returns the register with the EMPC bit set or
// cleared.
func (r CccrPowerControl) SetMasterPowerControl(enable bool) CccrPowerControl {
	if enable {
		return r | 1<<1
	}
	return r &^ (1 << 1)
}

// CccrHighSpeed is the high speed byte at CCCR 0x13.
type CccrHighSpeed uint8

// SupportsHighSpeed reports the SHS bit.
func (r CccrHighSpeed) SupportsHighSpeed() bool {
	return r&(1<<0) != 0
}

// HighSpeedEnabled reports the EHS bit.
func (r CccrHighSpeed) HighSpeedEnabled() bool {
	return r&(1<<1) != 0
}

// SetHighSpeed returns the register with the EHS bit set or cleared.
func (r CccrHighSpeed) SetHighSpeed(enable bool) CccrHighSpeed {
	if enable {
		return r | 1<<1
	}
	return r &^ (1 << 1)
}

// CccrBlockSize is the function 0 block size register at CCCR 0x10, two
// bytes, LSB first on the wire.
type CccrBlockSize uint16

// Size returns the configured block size.
func (r CccrBlockSize) Size() uint16 {
	return uint16(r)
}

// Bytes returns the register bytes in wire order.
func (r CccrBlockSize) Bytes() [2]byte {
	return [2]byte{byte(r), byte(r >> 8)}
}
