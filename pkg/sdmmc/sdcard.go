// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdmmc

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/register"
)

// CMD8 argument fields.
const (
	cmd8VhsHigh      = 0b0001 << 8
	cmd8CheckPattern = 0b10101010
)

// SD CMD6 switch function argument: mode switch, access mode group set to
// high speed, every other group left unchanged.
const sdCmd6SwitchHighSpeed = 0x80FFFFF1

// cmd8IsV2 sends the interface condition command. A valid echo of the
// voltage and check pattern identifies a version 2.0 card; a timeout or a
// non compliant response identifies a 1.x card or an MMC device.
func (c *Controller) cmd8IsV2() (bool, error) {
	arg := uint32(cmd8VhsHigh | cmd8CheckPattern)
	if c.bus.SendCommand(c.cmd8(), arg) != nil {
		return false, nil
	}
	resp := c.bus.Response()
	if resp == 0xFFFFFFFF {
		// Non compliant R7.
		return false, nil
	}
	if resp != arg {
		return false, bus.ErrInvalidConfiguration
	}
	return true, nil
}

// loadOcrSdCard runs the ACMD41 probe loop until the card reports power up,
// sampling the capacity status once ready. The bound corresponds to one
// second at the 400 kHz identification clock.
func (c *Controller) loadOcrSdCard(v2 bool) error {
	arg := uint32(register.OcrVoltageSupport())
	if v2 {
		// Announce SDHC/SDXC host support.
		arg |= 1 << 30
	}

	for i := 0; i < sdOcrRetries; i++ {
		// CMD55 - the next command is application specific.
		if err := c.bus.SendCommand(command.Cmd55AppCmd, 0); err != nil {
			return err
		}
		if err := c.bus.SendCommand(c.acmd41(), arg); err != nil {
			return err
		}
		if c.mci == nil {
			// SPI mode signals ready through the in-idle bit.
			if c.bus.Response()&1 != 0 {
				continue
			}
			return c.spiCheckCapacity()
		}
		ocr := register.Ocr(c.bus.Response())
		if !ocr.PoweredUp() {
			continue
		}
		if ocr.CardCapacityStatus() {
			c.card.Kind |= KindHighCapacity
		}
		return nil
	}
	return bus.ErrTimedOut
}

// spiCheckCapacity reads the OCR with CMD58 to sample the capacity status,
// which SPI mode cannot deliver through ACMD41.
func (c *Controller) spiCheckCapacity() error {
	if err := c.bus.SendCommand(command.SpiCmd58ReadOcr, 0); err != nil {
		return err
	}
	if register.Ocr(c.bus.Response()).CardCapacityStatus() {
		c.card.Kind |= KindHighCapacity
	}
	return nil
}

// decodeSdCsd updates clock and capacity from the CSD register.
func (c *Controller) decodeSdCsd() {
	c.card.Clock = register.SdTransferRateHz(c.card.CSD.TranSpeed())
	c.card.CapacityKB = c.card.CSD.SdCapacityKB()
}

// tuneSd refines the version from the SCR and negotiates bus width and high
// speed mode where the peripheral allows it.
func (c *Controller) tuneSd() error {
	if err := c.loadScr(); err != nil {
		return err
	}
	if c.mci == nil {
		// SPI mode: single data line, no switchable timing.
		return nil
	}

	width, err := c.mci.MaxBusWidth(c.cfg.Slot)
	if err != nil {
		return err
	}
	if width >= bus.Width4Bit {
		if err := c.sdSetBusWidth4(); err != nil {
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
	if hsCapable {
		if _, err := c.sdSetHighSpeed(); err != nil {
			return bus.ErrCouldNotSetToHighSpeed
		}
		if err := c.selectDevice(); err != nil {
			return err
		}
	}
	return nil
}

// loadScr reads the SD configuration register (ACMD51) and assigns the card
// version from the physical layer revision.
func (c *Controller) loadScr() error {
	var buf [8]byte
	if err := c.bus.SendCommand(command.Cmd55AppCmd, uint32(c.card.RCA)<<16); err != nil {
		return err
	}
	if err := c.bus.AdtcStart(command.Acmd51SendScr, 0, 8, 1, true); err != nil {
		return err
	}
	if err := c.bus.ReadBlocks(buf[:]); err != nil {
		return err
	}
	if err := c.bus.WaitUntilReadFinished(); err != nil {
		return err
	}

	scr := register.ScrFromBytes(buf[:])
	switch scr.SdSpec() {
	case register.SdSpec1_01:
		c.card.Version = SDVersion1_0
	case register.SdSpec1_10:
		c.card.Version = SDVersion1_10
	case register.SdSpec2_00:
		c.card.Version = SDVersion2_0
	default:
		c.card.Version = SDVersion1_0
	}
	return nil
}

// sdSetBusWidth4 switches the card to the 4-bit bus (ACMD6). SD memory
// cards are required to support it.
func (c *Controller) sdSetBusWidth4() error {
	if err := c.bus.SendCommand(command.Cmd55AppCmd, uint32(c.card.RCA)<<16); err != nil {
		return err
	}
	if err := c.bus.SendCommand(command.Acmd6SetBusWidth, 0x2); err != nil {
		return err
	}
	c.card.Width = bus.Width4Bit
	return nil
}

// sdSetHighSpeed switches the card access mode to high speed through the
// CMD6 function group mechanism. A refusal reported in the switch status is
// not a protocol error; the card stays in its current mode and false is
// returned.
func (c *Controller) sdSetHighSpeed() (bool, error) {
	var buf [64]byte
	if err := c.bus.AdtcStart(command.SdCmd6SwitchFunc, sdCmd6SwitchHighSpeed, 64, 1, true); err != nil {
		return false, err
	}
	if err := c.bus.ReadBlocks(buf[:]); err != nil {
		return false, err
	}
	if err := c.bus.WaitUntilReadFinished(); err != nil {
		return false, err
	}

	status := register.SwitchStatusFromBytes(buf[:])
	if status.Group1Info() == register.GroupRcError {
		return false, nil
	}
	if status.Group1Busy() > 0 {
		return false, bus.ErrGroupBusy
	}

	// The function switch completes within 8 clocks after the end bit of
	// the status block.
	if err := c.bus.SendClock(); err != nil {
		return false, err
	}

	c.card.HighSpeed = true
	c.card.Clock *= 2
	return true, nil
}
