// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdmmc

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/register"
)

// Pin is a boolean level provider for the card detect and write protect
// lines.
type Pin interface {
	IsHigh() (bool, error)
}

// Config describes the slot wiring.
type Config struct {
	Slot uint8

	// WriteProtect is the write protect pin, nil when the slot has none.
	// WriteProtectActiveHigh selects the level meaning protected.
	WriteProtect           Pin
	WriteProtectActiveHigh bool

	// Detect is the card detect pin, nil when the slot has none (a card is
	// then assumed present). DetectActiveHigh selects the level meaning a
	// card is inserted.
	Detect           Pin
	DetectActiveHigh bool

	// ProbeSDIO enables the CMD5 probe during identification.
	ProbeSDIO bool
}

// Identification clock rate.
const clockInit = 400_000

// Bounded retry counts standing in for wall clock timeouts, calibrated
// against the 400 kHz identification clock.
const (
	statusRetries   = 200_000
	sdOcrRetries    = 2_100
	mmcOcrRetries   = 4_200
	sdioOcrRetries  = 5_000
	blocklenRetries = 10
)

// Controller owns a Card and drives it from power up through the transfer
// state. Access is not synchronized; callers serialize externally.
type Controller struct {
	bus  bus.Transport
	mci  bus.Mci // non-nil when bus provides the native MCI capabilities
	card Card
	cfg  Config
}

// NewController returns a controller for the slot described by cfg, driving
// the card through t. The controller owns the transport exclusively.
func NewController(t bus.Transport, cfg Config) *Controller {
	c := &Controller{bus: t, cfg: cfg}
	c.mci, _ = t.(bus.Mci)
	c.card.State = StateNoCard
	return c
}

// Card returns a snapshot of the detected card.
func (c *Controller) Card() Card {
	return c.card
}

func (c *Controller) cardPresent() (bool, error) {
	if c.cfg.Detect == nil {
		return true, nil
	}
	high, err := c.cfg.Detect.IsHigh()
	if err != nil {
		return false, bus.ErrPinLevel
	}
	return high == c.cfg.DetectActiveHigh, nil
}

func (c *Controller) writeProtected() (bool, error) {
	if c.cfg.WriteProtect == nil {
		return false, nil
	}
	high, err := c.cfg.WriteProtect.IsHigh()
	if err != nil {
		return false, bus.ErrPinLevel
	}
	return high == c.cfg.WriteProtectActiveHigh, nil
}

// selectDevice configures the bus for this card at its current clock, width
// and timing.
func (c *Controller) selectDevice() error {
	if err := c.bus.SelectDevice(c.cfg.Slot, c.card.Clock, c.card.Width, c.card.HighSpeed); err != nil {
		return bus.ErrCouldNotSelectDevice
	}
	return nil
}

// Deselect releases the bus.
func (c *Controller) Deselect() error {
	return c.bus.DeselectDevice(c.cfg.Slot)
}

// SelectSlot selects this controller's slot and, on a fresh insertion, runs
// the full initialization sequence. A card that failed initialization stays
// unusable until removed.
func (c *Controller) SelectSlot() error {
	present, err := c.cardPresent()
	if err != nil {
		return err
	}
	if !present {
		c.card.State = StateNoCard
		return bus.ErrNoCard
	}

	switch c.card.State {
	case StateNoCard, StateDebounce:
		c.card.State = StateInit
	case StateUnusable:
		return bus.ErrUnusableCard
	case StateReady:
		return c.selectDevice()
	}

	if err := c.initialize(); err != nil {
		c.card.State = StateUnusable
		return err
	}
	c.card.State = StateReady
	return nil
}

// initialize resets the card model and walks the identification, capability
// negotiation and tuning sequence.
func (c *Controller) initialize() error {
	c.card = Card{
		State: StateInit,
		Clock: clockInit,
		Width: bus.Width1Bit,
	}

	if err := c.selectDevice(); err != nil {
		return err
	}
	if err := c.bus.SendClock(); err != nil {
		return err
	}
	if err := c.identify(); err != nil {
		return err
	}

	if c.card.Kind.IsSD() || c.card.Kind.IsMMC() {
		if err := c.initMemoryCard(); err != nil {
			return err
		}
	}
	if c.card.Kind.IsSDIO() {
		if err := c.initSdio(); err != nil {
			return err
		}
	}

	// Apply the negotiated clock and width before leaving the init state.
	if err := c.selectDevice(); err != nil {
		return err
	}

	if c.card.Kind.IsSD() || c.card.Kind.IsMMC() {
		if err := c.setBlockLen(); err != nil {
			return err
		}
	}
	return nil
}

// identify resets the card and determines its kind.
func (c *Controller) identify() error {
	if err := c.bus.SendCommand(c.cmd0(), 0); err != nil {
		return err
	}

	if c.cfg.ProbeSDIO {
		if err := c.sdioProbe(); err != nil {
			return err
		}
	}
	if c.card.Kind.IsSDIO() && !c.card.Kind.IsSD() {
		// Pure IO card, no memory identification to run.
		return nil
	}

	v2, err := c.cmd8IsV2()
	if err != nil {
		return err
	}
	if err := c.loadOcrSdCard(v2); err != nil {
		if v2 {
			return err
		}
		// Not an SD card. Reset again and try the MMC path.
		if err := c.bus.SendCommand(c.cmd0(), 0); err != nil {
			return err
		}
		if err := c.loadOcrMmc(); err != nil {
			return err
		}
		c.card.Kind |= KindMMC
		return nil
	}
	c.card.Kind |= KindSD
	if v2 {
		c.card.Version = SDVersion2_0
	}
	return nil
}

// initMemoryCard identifies the addressed card, decodes its registers and
// negotiates bus width and high speed mode.
func (c *Controller) initMemoryCard() error {
	if c.mci != nil {
		// CMD2 - put the card in identification mode.
		if err := c.bus.SendCommand(command.Cmd2AllSendCid, 0); err != nil {
			return err
		}
		c.card.CID = register.CidFromWords(c.mci.Response128())

		if err := c.assignRelativeAddress(); err != nil {
			return err
		}
	}

	if err := c.loadCsd(); err != nil {
		return err
	}
	if c.card.Kind.IsMMC() {
		c.decodeMmcCsd()
	} else {
		c.decodeSdCsd()
	}

	if c.mci != nil {
		// CMD7 - put the card into transfer state. SPI mode cards are
		// always selected.
		if err := c.bus.SendCommand(command.Cmd7SelectCard, uint32(c.card.RCA)<<16); err != nil {
			return err
		}
	} else {
		if err := c.spiLoadCid(); err != nil {
			return err
		}
	}

	if c.card.Kind.IsMMC() {
		return c.tuneMmc()
	}
	return c.tuneSd()
}

// assignRelativeAddress runs CMD3. MMC devices are assigned RCA 1 by the
// host; SD cards publish their own address.
func (c *Controller) assignRelativeAddress() error {
	if c.card.Kind.IsMMC() {
		c.card.RCA = 1
		return c.bus.SendCommand(command.MmcCmd3SetRelativeAddr, uint32(c.card.RCA)<<16)
	}
	if err := c.bus.SendCommand(command.SdCmd3SendRelativeAddr, 0); err != nil {
		return err
	}
	c.card.RCA = uint16(c.bus.Response() >> 16)
	return nil
}

// loadCsd reads the CSD register. The MCI path takes it from the 136-bit R2
// response, the SPI path reads it as a 16-byte data block. The two paths
// never mix.
func (c *Controller) loadCsd() error {
	arg := uint32(c.card.RCA) << 16
	if c.mci != nil {
		if err := c.bus.SendCommand(command.MciCmd9SendCsd, arg); err != nil {
			return err
		}
		c.card.CSD = register.CsdFromWords(c.mci.Response128())
		return nil
	}

	var buf [16]byte
	if err := c.bus.AdtcStart(command.SpiCmd9SendCsd, arg, 16, 1, true); err != nil {
		return err
	}
	if err := c.bus.ReadBlocks(buf[:]); err != nil {
		return err
	}
	if err := c.bus.WaitUntilReadFinished(); err != nil {
		return err
	}
	c.card.CSD = register.CsdFromBytes(buf[:])
	return nil
}

// spiLoadCid reads the CID as a data block, the only way to obtain it in
// SPI mode.
func (c *Controller) spiLoadCid() error {
	var buf [16]byte
	if err := c.bus.AdtcStart(command.SpiCmd10SendCid, 0, 16, 1, true); err != nil {
		return err
	}
	if err := c.bus.ReadBlocks(buf[:]); err != nil {
		return err
	}
	if err := c.bus.WaitUntilReadFinished(); err != nil {
		return err
	}
	var w [4]uint32
	for i := range w {
		w[i] = uint32(buf[i*4])<<24 | uint32(buf[i*4+1])<<16 |
			uint32(buf[i*4+2])<<8 | uint32(buf[i*4+3])
	}
	c.card.CID = register.CidFromWords(w)
	return nil
}

// loadStatus polls CMD13 until the card reports it can accept data. SPI
// mode cards signal busy in band instead; there is no READY_FOR_DATA bit in
// an SPI R1 to poll.
func (c *Controller) loadStatus() (register.CardStatus, error) {
	if c.mci == nil {
		return 0, nil
	}
	for i := 0; i < statusRetries; i++ {
		if err := c.bus.SendCommand(command.Cmd13SendStatus, uint32(c.card.RCA)<<16); err != nil {
			return 0, err
		}
		status := register.CardStatus(c.bus.Response())
		if status.ReadyForData() {
			return status, nil
		}
	}
	return 0, bus.ErrTimedOut
}

// setBlockLen fixes the block length to 512 bytes. The retry is a workaround
// for non compliant cards that are not ready immediately after the high
// speed switch.
func (c *Controller) setBlockLen() error {
	for i := 0; i < blocklenRetries; i++ {
		if c.bus.SendCommand(command.Cmd16SetBlocklen, bus.BlockSize) == nil {
			return nil
		}
	}
	return bus.ErrTimedOut
}

// Command descriptor selection for the commands whose response class differs
// between the native and the SPI wire.

func (c *Controller) cmd0() command.Command {
	if c.mci != nil {
		return command.MciCmd0GoIdleState
	}
	return command.SpiCmd0GoIdleState
}

func (c *Controller) cmd1() command.Command {
	if c.mci != nil {
		return command.MciCmd1SendOpCond
	}
	return command.SpiCmd1SendOpCond
}

func (c *Controller) cmd8() command.Command {
	if c.mci != nil {
		return command.SdCmd8SendIfCond
	}
	return command.SpiCmd8SendIfCond
}

func (c *Controller) acmd41() command.Command {
	if c.mci != nil {
		return command.MciAcmd41SendOpCond
	}
	return command.SpiAcmd41SendOpCond
}
