// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spi implements the bus.Transport capability set over a byte
// oriented SPI connection and a chip select pin.
//
// The package owns the SPI framing state machine of the SD/MMC protocol:
// Ncs/Ncr/Nec timing filler, R1 polling, busy waits, block data tokens and
// the stop transmission token for multi block writes. Chip select is held
// low across an entire frame; only SendClock and Deinit release it.
package spi

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
)

// Conn is a full duplex byte connection. periph.io/x/conn/v3/spi.Conn
// satisfies it; the port must be configured with manual chip select.
type Conn interface {
	// Tx writes w while reading len(r) bytes. Either buffer may be nil.
	Tx(w, r []byte) error
}

// CSPin drives the chip select line.
type CSPin interface {
	// Low asserts chip select.
	Low() error
	// High releases chip select.
	High() error
}

// Bounded iteration counts standing in for the Ncr/Nac/Nec windows. The
// values are safe floors calibrated at a 400 kHz identification clock.
const (
	ncrRetries = 7
	nacRetries = 500_000
	necRetries = 200_000
)

// Bus implements bus.Transport over SPI.
type Bus struct {
	conn Conn
	cs   CSPin

	lastResponse uint32
	blockSize    int
	numBlocks    int
	position     int
}

// New returns an SPI backend on conn with cs as chip select.
func New(conn Conn, cs CSPin) *Bus {
	return &Bus{conn: conn, cs: cs}
}

func (b *Bus) writeByte(v byte) error {
	return b.writeBytes([]byte{v})
}

func (b *Bus) writeBytes(p []byte) error {
	if err := b.conn.Tx(p, nil); err != nil {
		return bus.ErrWrite
	}
	return nil
}

func (b *Bus) readByte() (byte, error) {
	var v [1]byte
	if err := b.readBytes(v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

// readBytes clocks len(p) bytes out of the card while keeping MOSI high.
func (b *Bus) readBytes(p []byte) error {
	for i := range p {
		p[i] = 0xFF
	}
	if err := b.conn.Tx(p, p); err != nil {
		return bus.ErrRead
	}
	return nil
}

func (b *Bus) select_() error {
	if err := b.cs.Low(); err != nil {
		return bus.ErrCouldNotSelectDevice
	}
	return nil
}

func (b *Bus) deselect() error {
	if err := b.cs.High(); err != nil {
		return bus.ErrCouldNotSelectDevice
	}
	return nil
}

// waitBusy polls the line until the card releases the busy signal. Two dummy
// reads satisfy the Nec window before polling starts.
func (b *Bus) waitBusy() error {
	if _, err := b.readByte(); err != nil {
		return err
	}
	if _, err := b.readByte(); err != nil {
		return err
	}
	for i := 0; i < necRetries; i++ {
		v, err := b.readByte()
		if err != nil {
			return err
		}
		if v == 0xFF {
			return nil
		}
	}
	return bus.ErrDataTimeout
}

// Init supplies the minimum of 74 clock cycles required after card power up.
func (b *Bus) Init() error {
	return b.SendClock()
}

// Deinit releases the chip select line.
func (b *Bus) Deinit() error {
	return b.deselect()
}

// SendClock releases chip select, emits 80 clock cycles and reasserts it.
func (b *Bus) SendClock() error {
	if err := b.deselect(); err != nil {
		return err
	}
	for i := 0; i < 10; i++ {
		if err := b.writeByte(0xFF); err != nil {
			return err
		}
	}
	return b.select_()
}

// SelectDevice is a no-op: SPI mode has a single slot and the host owns the
// clock configuration.
func (b *Bus) SelectDevice(slot uint8, clock uint32, width bus.BusWidth, highSpeed bool) error {
	return nil
}

// DeselectDevice is a no-op, see SelectDevice.
func (b *Bus) DeselectDevice(slot uint8) error {
	return nil
}

// SendCommand issues a command without a data phase.
func (b *Bus) SendCommand(cmd command.Command, arg uint32) error {
	return b.AdtcStart(cmd, arg, 0, 0, false)
}

// Response returns the 32-bit response of the last command.
func (b *Bus) Response() uint32 {
	return b.lastResponse
}

// AdtcStart emits the 6-byte command frame, decodes the R1 reply and records
// the geometry of the upcoming data phase.
func (b *Bus) AdtcStart(cmd command.Command, arg uint32, blockSize uint16, count uint16, accessInBlocks bool) error {
	// One filler byte satisfies the Ncs timing. It carries no start bit, so
	// the card ignores it.
	if err := b.writeByte(0xFF); err != nil {
		return err
	}

	frame := [6]byte{
		0x40 | cmd.Index(),
		byte(arg >> 24),
		byte(arg >> 16),
		byte(arg >> 8),
		byte(arg),
	}
	frame[5] = CRC7(frame[:5])
	if err := b.writeBytes(frame[:]); err != nil {
		return err
	}

	// Ncr minimum is 8 clock cycles, drop one byte before polling.
	if _, err := b.readByte(); err != nil {
		return err
	}
	r1, err := b.readByte()
	if err != nil {
		return err
	}
	for i := 0; r1&r1Error != 0; i++ {
		if i == ncrRetries {
			return bus.ErrCommandTimeout
		}
		if r1, err = b.readByte(); err != nil {
			return err
		}
	}
	b.lastResponse = uint32(r1)

	if r1&r1CommandCrc != 0 {
		return bus.ErrCommandCrc
	}
	if r1&r1IllegalCommand != 0 {
		return bus.ErrCommandIndex
	}
	if r1&r1Idle != 0 && !cmd.ToleratesIdle() {
		return bus.ErrWrite
	}
	if cmd.MayBeBusy() {
		if err := b.waitBusy(); err != nil {
			return err
		}
	}
	if cmd.Has8BitResponse() {
		v, err := b.readByte()
		if err != nil {
			return err
		}
		b.lastResponse = uint32(v)
	}
	if cmd.Has32BitResponse() {
		var body [4]byte
		if err := b.readBytes(body[:]); err != nil {
			return err
		}
		b.lastResponse = uint32(body[0])<<24 | uint32(body[1])<<16 |
			uint32(body[2])<<8 | uint32(body[3])
	}

	b.blockSize = int(blockSize)
	b.numBlocks = int(count)
	b.position = 0
	return nil
}

// AdtcStop is a no-op: multi block SPI transfers terminate with the stop
// transmission token, not CMD12.
func (b *Bus) AdtcStop(cmd command.Command, arg uint32) error {
	return nil
}

// startReadBlock hunts for the start data token within the Nac window.
func (b *Bus) startReadBlock() error {
	token, err := b.readByte()
	if err != nil {
		return err
	}
	for i := 0; token != tokenStartBlock; i++ {
		// A zero upper nibble marks a data error token. 0x00 and a bare
		// error bit are still seen while the card prepares the block, so
		// only tokens carrying a cause bit abort the poll. CardECCFailed
		// outranks the other causes.
		if token&0xF0 == 0 && token > errTokenError {
			if token&errTokenCardEcc != 0 {
				return bus.ErrUnusableCard
			}
			if token&errTokenCc != 0 {
				return bus.ErrDataCrc
			}
			return bus.ErrRead
		}
		if i == nacRetries {
			return bus.ErrDataTimeout
		}
		if token, err = b.readByte(); err != nil {
			return err
		}
	}
	return nil
}

// stopReadBlock consumes the CRC16 trailer. It is not validated in SPI mode.
func (b *Bus) stopReadBlock() error {
	var crc [2]byte
	return b.readBytes(crc[:])
}

// ReadWord reads the next 4 bytes of the data phase, handling block framing
// transparently.
func (b *Bus) ReadWord() (uint32, error) {
	if b.position%b.blockSize == 0 {
		if err := b.startReadBlock(); err != nil {
			return 0, err
		}
	}
	var p [4]byte
	if err := b.readBytes(p[:]); err != nil {
		return 0, err
	}
	b.position += 4
	if b.position%b.blockSize == 0 {
		if err := b.stopReadBlock(); err != nil {
			return 0, err
		}
	}
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24, nil
}

// ReadBlocks transfers len(p)/blockSize blocks from the card.
func (b *Bus) ReadBlocks(p []byte) error {
	for len(p) > 0 {
		if err := b.startReadBlock(); err != nil {
			return err
		}
		if err := b.readBytes(p[:b.blockSize]); err != nil {
			return err
		}
		b.position += b.blockSize
		if err := b.stopReadBlock(); err != nil {
			return err
		}
		p = p[b.blockSize:]
	}
	return nil
}

// WaitUntilReadFinished is a no-op: block reads complete synchronously.
func (b *Bus) WaitUntilReadFinished() error {
	return nil
}

func (b *Bus) startWriteBlock() error {
	if err := b.writeByte(0xFF); err != nil {
		return err
	}
	token := byte(tokenStartBlock)
	if b.numBlocks > 1 {
		token = tokenStartMultiWrite
	}
	return b.writeByte(token)
}

// stopWriteBlock emits the CRC trailer and decodes the data response token.
func (b *Bus) stopWriteBlock() error {
	// CRC is disabled in SPI mode, the trailer bytes are dummies.
	if err := b.writeBytes([]byte{0xFF, 0xFF}); err != nil {
		return err
	}
	token, err := b.readByte()
	if err != nil {
		return err
	}
	if token&0b10001 != 0b00001 {
		return bus.ErrRead
	}
	switch (token >> 1) & 0b111 {
	case writeResponseAccepted:
		return nil
	case writeResponseCrcError:
		return bus.ErrDataCrc
	case writeResponseWriteError:
		return bus.ErrWrite
	}
	return bus.ErrWrite
}

// stopWriteMultiBlock emits the stop transmission token once every block of
// a multi block write has been transferred.
func (b *Bus) stopWriteMultiBlock() error {
	if b.numBlocks <= 1 {
		return nil
	}
	if b.numBlocks > b.position/b.blockSize {
		return nil
	}
	if err := b.writeByte(0xFF); err != nil {
		return err
	}
	if err := b.writeByte(tokenStopTransmission); err != nil {
		return err
	}
	return b.waitBusy()
}

// WriteWord writes the next 4 bytes of the data phase, handling block
// framing transparently.
func (b *Bus) WriteWord(v uint32) error {
	if b.position%b.blockSize == 0 {
		if err := b.startWriteBlock(); err != nil {
			return err
		}
	}
	p := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	if err := b.writeBytes(p[:]); err != nil {
		return err
	}
	b.position += 4
	if b.position%b.blockSize == 0 {
		if err := b.stopWriteBlock(); err != nil {
			return err
		}
		if err := b.waitBusy(); err != nil {
			return err
		}
	}
	return b.stopWriteMultiBlock()
}

// WriteBlocks transfers len(p)/blockSize blocks to the card. The busy wait
// of the final block is deferred to WaitUntilWriteFinished.
func (b *Bus) WriteBlocks(p []byte) error {
	numBlocks := len(p) / b.blockSize
	for i := 0; i < numBlocks; i++ {
		if err := b.startWriteBlock(); err != nil {
			return err
		}
		if err := b.writeBytes(p[i*b.blockSize : (i+1)*b.blockSize]); err != nil {
			return err
		}
		b.position += b.blockSize
		if err := b.stopWriteBlock(); err != nil {
			return err
		}
		if i < numBlocks-1 {
			if err := b.waitBusy(); err != nil {
				return err
			}
		}
	}
	return nil
}

// WaitUntilWriteFinished waits out the programming of the final block and
// terminates a completed multi block write with the stop transmission token.
func (b *Bus) WaitUntilWriteFinished() error {
	if err := b.waitBusy(); err != nil {
		return err
	}
	return b.stopWriteMultiBlock()
}
