// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdmmc

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/register"
)

// Direction of an SDIO register access.
type Direction uint8

const (
	DirectionRead  Direction = 0
	DirectionWrite Direction = 1
)

// SDIO function numbers. Function 0 addresses the common I/O area.
type Function uint8

const (
	FunctionCia Function = 0
	Function1   Function = 1
	Function2   Function = 2
	Function3   Function = 3
	Function4   Function = 4
	Function5   Function = 5
	Function6   Function = 6
	Function7   Function = 7
)

// CIS tuple codes.
const (
	cisTupleEnd   = 0xFF
	cisTupleFunce = 0x22
)

// cmd52Arg packs the IO_RW_DIRECT argument: direction bit 31, function
// 30:28, RAW flag 27, register address 25:9, write data 7:0.
func cmd52Arg(dir Direction, fn Function, addr uint32, readAfterWrite bool, data uint8) uint32 {
	arg := uint32(data)
	arg |= (addr & 0x1FFFF) << 9
	if readAfterWrite {
		arg |= 1 << 27
	}
	arg |= uint32(fn) << 28
	if dir == DirectionWrite {
		arg |= 1 << 31
	}
	return arg
}

// cmd53Arg packs the IO_RW_EXTENDED argument: direction bit 31, function
// 30:28, block mode 27, op code 26, register address 25:9, count 8:0.
func cmd53Arg(dir Direction, fn Function, addr uint32, increment bool, blockMode bool, count uint16) uint32 {
	arg := uint32(count) & 0x1FF
	arg |= (addr & 0x1FFFF) << 9
	if increment {
		arg |= 1 << 26
	}
	if blockMode {
		arg |= 1 << 27
	}
	arg |= uint32(fn) << 28
	if dir == DirectionWrite {
		arg |= 1 << 31
	}
	return arg
}

// sdioProbe sends CMD5 to detect an SDIO card and, when one answers, runs
// the operation condition loop until it powers up. A card that does not
// answer CMD5 is simply not an SDIO card.
func (c *Controller) sdioProbe() error {
	if c.bus.SendCommand(command.Cmd5SendOpCond, 0) != nil {
		return nil
	}
	ocr := register.Ocr(c.bus.Response())
	if ocr.IoFunctions() == 0 {
		return nil
	}

	arg := uint32(ocr) & uint32(register.OcrVoltageSupport())
	for i := 0; i < sdioOcrRetries; i++ {
		if err := c.bus.SendCommand(command.Cmd5SendOpCond, arg); err != nil {
			return err
		}
		resp := register.Ocr(c.bus.Response())
		if !resp.PoweredUp() {
			continue
		}
		c.card.Kind |= KindSDIO
		if resp.MemoryPresent() {
			c.card.Kind |= KindSD
		}
		return nil
	}
	return bus.ErrTimedOut
}

// initSdio tunes the IO side of the card: transfer speed from the CIS,
// 4-bit bus and high speed mode where supported.
func (c *Controller) initSdio() error {
	if c.mci != nil && !c.card.Kind.IsSD() && !c.card.Kind.IsMMC() {
		// Pure IO card: it still needs an address and a selection.
		if err := c.bus.SendCommand(command.SdCmd3SendRelativeAddr, 0); err != nil {
			return err
		}
		c.card.RCA = uint16(c.bus.Response() >> 16)
		if err := c.bus.SendCommand(command.Cmd7SelectCard, uint32(c.card.RCA)<<16); err != nil {
			return err
		}
	}

	clock, err := c.sdioMaxSpeed()
	if err != nil {
		return err
	}
	if c.card.Kind.IsSD() || c.card.Kind.IsMMC() {
		// A combo card is a full speed SDIO card; the memory side already
		// set a clock, keep the slower of the two.
		if clock < c.card.Clock {
			c.card.Clock = clock
		}
	} else {
		c.card.Clock = clock
	}

	if c.mci != nil {
		width, err := c.mci.MaxBusWidth(c.cfg.Slot)
		if err != nil {
			return err
		}
		if width >= bus.Width4Bit {
			if _, err := c.sdioSwitch4BitBus(); err != nil {
				return bus.ErrCouldNotSetBusWidth
			}
		}

		hsCapable, err := c.mci.IsHighSpeedCapable()
		if err != nil {
			return bus.ErrCouldNotCheckHighSpeed
		}
		if hsCapable {
			if _, err := c.sdioSetHighSpeed(); err != nil {
				return bus.ErrCouldNotSetToHighSpeed
			}
		}
	}
	return nil
}

// Cmd52 issues an IO_RW_DIRECT access and returns the response byte.
func (c *Controller) Cmd52(dir Direction, fn Function, addr uint32, readAfterWrite bool, data uint8) (uint8, error) {
	arg := cmd52Arg(dir, fn, addr, readAfterWrite, data)
	if err := c.bus.SendCommand(command.Cmd52IoRwDirect, arg); err != nil {
		return 0, err
	}
	return uint8(c.bus.Response()), nil
}

// readCia reads n bytes of the common I/O area one register at a time.
func (c *Controller) readCia(addr uint32, buf []byte, n int) error {
	if n > len(buf) {
		return bus.ErrInvalidConfiguration
	}
	for i := 0; i < n; i++ {
		v, err := c.Cmd52(DirectionRead, FunctionCia, addr+uint32(i), false, 0)
		if err != nil {
			return err
		}
		buf[i] = v
	}
	return nil
}

func (c *Controller) readCia32(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := c.readCia(addr, buf[:], 4); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// sdioMaxSpeed walks the CIS tuple chain for the function 0 FUNCE tuple and
// decodes its maximum transfer rate field.
func (c *Controller) sdioMaxSpeed() (uint32, error) {
	cisAddr, err := c.readCia32(register.CccrCisPointerAddr)
	if err != nil {
		return 0, err
	}

	var buf [6]byte
	addr := cisAddr
	for {
		if err := c.readCia(addr, buf[:], 4); err != nil {
			return 0, err
		}
		if buf[0] == cisTupleEnd {
			return 0, bus.ErrTupleNotFound
		}
		if buf[0] == cisTupleFunce && buf[2] == 0x00 {
			break
		}
		if buf[1] == 0 {
			return 0, bus.ErrTupleNotFound
		}
		// The next tuple follows the code byte, the link byte and the
		// link bytes of body.
		addr += uint32(buf[1]) + 2
		if addr > cisAddr+256 {
			return 0, bus.ErrTupleNotFound
		}
	}

	// Read the function 0 FUNCE tuple from its start, fn0_blk_size and
	// max_tran_speed (offset 5) included.
	if err := c.readCia(addr, buf[:], 6); err != nil {
		return 0, err
	}

	speed := buf[5]
	if speed > 0x32 {
		// Known non compliant SDIO SIP chips (H&D wireless HDG104)
		// advertise impossible rates; they are full speed 25 MHz parts.
		speed = 0x32
	}
	return register.SdTransferRateHz(speed), nil
}

// sdioSwitch4BitBus switches the IO side to the 4-bit bus. Low speed cards
// without the 4BLS capability stay on the single data line.
func (c *Controller) sdioSwitch4BitBus() (bus.BusWidth, error) {
	capability, err := c.Cmd52(DirectionRead, FunctionCia, register.CccrCardCapabilityAddr, false, 0)
	if err != nil {
		return c.card.Width, err
	}
	if !register.CccrCardCapability(capability).Supports4Bit() {
		return bus.Width1Bit, nil
	}

	ctrl := register.CccrBusInterface(0).SetBusWidth(register.SdioBus4Bit)
	if _, err := c.Cmd52(DirectionWrite, FunctionCia, register.CccrBusInterfaceAddr, true, uint8(ctrl)); err != nil {
		return c.card.Width, err
	}
	c.card.Width = bus.Width4Bit
	return bus.Width4Bit, nil
}

// sdioSetHighSpeed enables the high speed mode through the CCCR. A card
// without the SHS capability stays in its current mode; that is not a
// protocol error.
func (c *Controller) sdioSetHighSpeed() (bool, error) {
	v, err := c.Cmd52(DirectionRead, FunctionCia, register.CccrHighSpeedAddr, false, 0)
	if err != nil {
		return false, err
	}
	if !register.CccrHighSpeed(v).SupportsHighSpeed() {
		return false, nil
	}

	enable := register.CccrHighSpeed(0).SetHighSpeed(true)
	if _, err := c.Cmd52(DirectionWrite, FunctionCia, register.CccrHighSpeedAddr, true, uint8(enable)); err != nil {
		return false, err
	}
	c.card.HighSpeed = true
	c.card.Clock *= 2
	return true, nil
}

// cmd53 issues an IO_RW_EXTENDED transfer in multi byte mode. Sizes of 1 to
// 512 bytes are supported; block mode is optional for SDIO cards and not
// used here.
func (c *Controller) cmd53(dir Direction, fn Function, addr uint32, increment bool, size uint16) error {
	if size == 0 || size > 512 {
		return bus.ErrIncorrectDataSize
	}

	cmd := command.Cmd53IoReadByteExtended
	if dir == DirectionWrite {
		cmd = command.Cmd53IoWriteByteExtended
	}
	arg := cmd53Arg(dir, fn, addr, increment, false, size%512)
	return c.bus.AdtcStart(cmd, arg, size, 1, true)
}

// ReadDirect reads one IO register.
func (c *Controller) ReadDirect(fn Function, addr uint32) (uint8, error) {
	if err := c.selectDevice(); err != nil {
		return 0, err
	}
	return c.Cmd52(DirectionRead, fn, addr, false, 0)
}

// WriteDirect writes one IO register.
func (c *Controller) WriteDirect(fn Function, addr uint32, data uint8) error {
	if err := c.selectDevice(); err != nil {
		return err
	}
	_, err := c.Cmd52(DirectionWrite, fn, addr, false, data)
	return err
}

// ReadExtended reads len(dst) bytes from an IO function.
func (c *Controller) ReadExtended(fn Function, addr uint32, increment bool, dst []byte) error {
	if err := c.selectDevice(); err != nil {
		return err
	}
	if err := c.cmd53(DirectionRead, fn, addr, increment, uint16(len(dst))); err != nil {
		return err
	}
	if err := c.bus.ReadBlocks(dst); err != nil {
		return err
	}
	return c.bus.WaitUntilReadFinished()
}

// WriteExtended writes len(src) bytes to an IO function.
func (c *Controller) WriteExtended(fn Function, addr uint32, increment bool, src []byte) error {
	if err := c.selectDevice(); err != nil {
		return err
	}
	if err := c.cmd53(DirectionWrite, fn, addr, increment, uint16(len(src))); err != nil {
		return err
	}
	if err := c.bus.WriteBlocks(src); err != nil {
		return err
	}
	return c.bus.WaitUntilWriteFinished()
}
