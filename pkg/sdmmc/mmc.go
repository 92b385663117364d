// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdmmc

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/register"
)

// EXT_CSD byte indices (JESD84).
const (
	extCsdCardTypeIndex = 196
	extCsdSecCountIndex = 212
	extCsdSize          = 512
)

// EXT_CSD CARD_TYPE speed grades.
const (
	mmcCardType26MHz = 0x1
	mmcCardType52MHz = 0x2
)

// CMD6 switch argument fields (access 31:24, index 23:16, value 15:8).
const (
	mmcSwitchAccessSetBits   = 0b01
	mmcSwitchAccessWriteByte = 0b11

	extCsdBusWidthIndex = 183
	extCsdHsTimingIndex = 185
)

// MMC high speed clock rate.
const mmcHighSpeedClock = 52_000_000

func mmcSwitchArg(access, index, value uint32) uint32 {
	return access<<24 | index<<16 | value<<8
}

// loadOcrMmc runs the CMD1 probe loop until the card reports power up,
// sampling the access mode once ready. The bound corresponds to one second
// at the 400 kHz identification clock.
func (c *Controller) loadOcrMmc() error {
	arg := uint32(register.OcrVoltageSupport().SetAccessMode(register.AccessModeSector))

	for i := 0; i < mmcOcrRetries; i++ {
		if err := c.bus.SendCommand(c.cmd1(), arg); err != nil {
			return err
		}
		if c.mci == nil {
			if c.bus.Response()&1 != 0 {
				continue
			}
			return c.spiCheckCapacity()
		}
		ocr := register.Ocr(c.bus.Response())
		if !ocr.PoweredUp() {
			continue
		}
		if ocr.AccessMode() == register.AccessModeSector {
			c.card.Kind |= KindHighCapacity
		}
		return nil
	}
	return bus.ErrTimedOut
}

// decodeMmcCsd updates version, clock and capacity from the CSD register.
// High capacity devices flag C_SIZE with 0xFFF and report their real size
// through the EXT_CSD sector count.
func (c *Controller) decodeMmcCsd() {
	switch c.card.CSD.MmcSpecVersion() {
	case 0:
		c.card.Version = MMCVersion1_2
	case 1:
		c.card.Version = MMCVersion1_4
	case 2:
		c.card.Version = MMCVersion2_2
	case 3:
		c.card.Version = MMCVersion3_0
	case 4:
		c.card.Version = MMCVersion4_0
	default:
		c.card.Version = VersionUnknown
	}

	c.card.Clock = register.MmcTransferRateHz(c.card.CSD.TranSpeed())

	if c.card.CSD.CSize() != 0xFFF {
		c.card.CapacityKB = c.card.CSD.MmcCapacityKB()
	}
}

// tuneMmc reads the EXT_CSD on 4.0+ devices and negotiates bus width and
// high speed timing where the peripheral allows it.
func (c *Controller) tuneMmc() error {
	if c.card.Version < MMCVersion4_0 {
		return nil
	}

	authorizeHighSpeed, err := c.loadExtCsd()
	if err != nil {
		return err
	}
	if c.mci == nil {
		return nil
	}

	width, err := c.mci.MaxBusWidth(c.cfg.Slot)
	if err != nil {
		return err
	}
	if width >= bus.Width4Bit {
		if _, err := c.mmcSetBusWidth(width); err != nil {
			return bus.ErrCouldNotSetBusWidth
		}
		if err := c.selectDevice(); err != nil {
			return err
		}
	}

	hsCapable, err := c.mci.IsHighSpeedCapable()
	if err != nil {
		return bus.ErrCouldNotCheckHighSpeed
	}
	if hsCapable && authorizeHighSpeed {
		if _, err := c.mmcSetHighSpeed(); err != nil {
			return bus.ErrCouldNotSetToHighSpeed
		}
		if err := c.selectDevice(); err != nil {
			return err
		}
	}
	return nil
}

// loadExtCsd streams the 512-byte EXT_CSD, sampling the card speed grade
// and, for high capacity devices, the sector count. The block is read word
// by word to fast forward to the sampled indices without buffering it.
func (c *Controller) loadExtCsd() (highSpeedCapable bool, err error) {
	if err := c.bus.AdtcStart(command.MmcCmd8SendExtCsd, 0, extCsdSize, 1, false); err != nil {
		return false, err
	}

	var index uint32
	var word uint32
	for index < (extCsdCardTypeIndex+4)/4 {
		if word, err = c.bus.ReadWord(); err != nil {
			return false, err
		}
		index++
	}
	highSpeedCapable = (word>>((extCsdCardTypeIndex%4)*8))&0b11 == mmcCardType52MHz

	if c.card.CSD.CSize() == 0xFFF {
		for index < (extCsdSecCountIndex+4)/4 {
			if word, err = c.bus.ReadWord(); err != nil {
				return false, err
			}
			index++
		}
		c.card.CapacityKB = word
	}

	// Drain the remainder of the block.
	for index < extCsdSize/4 {
		if _, err = c.bus.ReadWord(); err != nil {
			return false, err
		}
		index++
	}
	return highSpeedCapable, nil
}

// mmcSetBusWidth switches the data bus width through the CMD6 SWITCH
// command. A switch error reported by the card is not a protocol error; the
// width stays unchanged and false is returned.
func (c *Controller) mmcSetBusWidth(width bus.BusWidth) (bool, error) {
	var value uint32
	switch width {
	case bus.Width4Bit:
		value = 0b01
	case bus.Width8Bit:
		value = 0b10
	default:
		return false, bus.ErrInvalidConfiguration
	}

	arg := mmcSwitchArg(mmcSwitchAccessSetBits, extCsdBusWidthIndex, value)
	if err := c.bus.SendCommand(command.MmcCmd6Switch, arg); err != nil {
		return false, err
	}
	if register.CardStatus(c.bus.Response()).SwitchError() {
		return false, nil
	}
	c.card.Width = width
	return true, nil
}

// mmcSetHighSpeed enables the high speed timing through the CMD6 SWITCH
// command and raises the clock to 52 MHz. A switch error is not a protocol
// error; the card stays in its current mode and false is returned.
func (c *Controller) mmcSetHighSpeed() (bool, error) {
	arg := mmcSwitchArg(mmcSwitchAccessWriteByte, extCsdHsTimingIndex, 1)
	if err := c.bus.SendCommand(command.MmcCmd6Switch, arg); err != nil {
		return false, err
	}
	if register.CardStatus(c.bus.Response()).SwitchError() {
		return false, nil
	}
	c.card.HighSpeed = true
	c.card.Clock = mmcHighSpeedClock
	return true, nil
}
