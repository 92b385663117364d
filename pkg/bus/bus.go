// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus defines the transport capability set shared by all SD/MMC/SDIO
// backends, along with the error taxonomy surfaced by the stack.
//
// A backend converts abstract command and data-transfer requests into wire
// traffic. The SPI backend in the spi subpackage owns the full SPI framing
// state machine; native MCI peripherals implement Mci on top of their
// register interface.
package bus

import "github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"

// BlockSize is the transfer granularity, in bytes, used for all block
// oriented card access.
const BlockSize = 512

// BusWidth is the number of DATA lines driven on the bus.
type BusWidth uint8

const (
	Width1Bit BusWidth = 1
	Width4Bit BusWidth = 4
	Width8Bit BusWidth = 8
)

// Bus is the minimal capability every backend provides.
type Bus interface {
	// Init initializes the low level driver. For SPI this supplies the
	// mandatory 74+ clock cycles after card power up.
	Init() error
	Deinit() error

	// SelectDevice applies clock, bus width and timing configuration for
	// the given slot and addresses it for subsequent commands.
	SelectDevice(slot uint8, clock uint32, width BusWidth, highSpeed bool) error
	DeselectDevice(slot uint8) error

	// SendClock issues 74+ clock cycles on the line without addressing any
	// device. Required after card plug and after an SD high speed switch.
	SendClock() error

	// SendCommand issues a command without a data phase.
	SendCommand(cmd command.Command, arg uint32) error

	// Response returns the 32-bit response of the last command.
	Response() uint32
}

// Adtc starts and stops addressed data transfer commands.
type Adtc interface {
	// AdtcStart issues cmd and prepares the backend for a data phase of
	// count blocks of blockSize bytes. When accessInBlocks is true the
	// caller transfers data with ReadBlocks/WriteBlocks, otherwise with
	// ReadWord/WriteWord.
	AdtcStart(cmd command.Command, arg uint32, blockSize uint16, count uint16, accessInBlocks bool) error

	// AdtcStop terminates an open ended data transfer. Backends that
	// terminate transfers in band (SPI stop token) treat this as a no-op.
	AdtcStop(cmd command.Command, arg uint32) error
}

// Reader drives the data phase of a read ADTC. Words are assembled in FIFO
// order: the first byte off the wire is the least significant.
type Reader interface {
	ReadWord() (uint32, error)
	ReadBlocks(p []byte) error
	WaitUntilReadFinished() error
}

// Writer drives the data phase of a write ADTC.
type Writer interface {
	WriteWord(v uint32) error
	WriteBlocks(p []byte) error
	WaitUntilWriteFinished() error
}

// Transport is the full capability set consumed by the controller.
type Transport interface {
	Bus
	Adtc
	Reader
	Writer
}

// Mci is implemented by native Multi-Media Card Interface peripherals. It
// extends Transport with the capabilities a byte-oriented SPI wire cannot
// provide.
type Mci interface {
	Transport

	// Response128 returns the 136-bit (R2) response of the last command.
	Response128() [4]uint32

	// MaxBusWidth returns the widest bus the peripheral supports for slot.
	MaxBusWidth(slot uint8) (BusWidth, error)

	// IsHighSpeedCapable reports whether the peripheral can clock the bus
	// at high speed rates.
	IsHighSpeedCapable() (bool, error)
}
