// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdmmc

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/register"
)

// blockAddress converts a block index into the argument the card expects:
// high capacity cards are addressed in block units, standard capacity cards
// in bytes.
func (c *Controller) blockAddress(start uint32) uint32 {
	if c.card.Kind.IsHighCapacity() {
		return start
	}
	return start * bus.BlockSize
}

// InitReadBlocks prepares a read of numBlocks blocks starting at block
// index start and returns the transaction tracking it.
func (c *Controller) InitReadBlocks(start uint32, numBlocks uint16) (Transaction, error) {
	if err := c.selectDevice(); err != nil {
		return Transaction{}, err
	}
	// Wait for the card buffer to be ready.
	if _, err := c.loadStatus(); err != nil {
		return Transaction{}, err
	}

	cmd := command.Cmd17ReadSingleBlock
	if numBlocks > 1 {
		cmd = command.Cmd18ReadMultipleBlock
	}
	if err := c.bus.AdtcStart(cmd, c.blockAddress(start), bus.BlockSize, numBlocks, true); err != nil {
		return Transaction{}, err
	}
	return newTransaction(numBlocks), nil
}

// StartRead transfers len(dst)/512 blocks of the open read transaction into
// dst. On error the transaction is terminated and cannot be resumed.
func (c *Controller) StartRead(t *Transaction, dst []byte) error {
	if err := c.bus.ReadBlocks(dst); err != nil {
		t.Remain = 0
		return bus.ErrRead
	}
	t.Remain -= uint16(len(dst) / bus.BlockSize)
	return nil
}

// WaitEndOfRead completes a read transaction. With abort set the remaining
// blocks are forfeited. Multiple block transfers are terminated with CMD12;
// the first failure of that command is tolerated once, a workaround for non
// compliant cards.
func (c *Controller) WaitEndOfRead(abort bool, t *Transaction) error {
	if err := c.bus.WaitUntilReadFinished(); err != nil {
		return err
	}
	if abort {
		t.Remain = 0
	} else if t.Remain > 0 {
		// Partially transferred, the transaction stays open.
		return nil
	}

	if t.Total <= 1 {
		// Single block transfers stop by themselves.
		return nil
	}

	if c.bus.AdtcStop(command.Cmd12StopTransmission, 0) != nil {
		return c.bus.AdtcStop(command.Cmd12StopTransmission, 0)
	}
	return nil
}

// InitWriteBlocks prepares a write of numBlocks blocks starting at block
// index start and returns the transaction tracking it. The write protect
// pin is honored before any command reaches the card.
func (c *Controller) InitWriteBlocks(start uint32, numBlocks uint16) (Transaction, error) {
	protected, err := c.writeProtected()
	if err != nil {
		return Transaction{}, err
	}
	if protected {
		return Transaction{}, bus.ErrWriteProtected
	}

	if err := c.selectDevice(); err != nil {
		return Transaction{}, err
	}

	cmd := command.Cmd24WriteBlock
	if numBlocks > 1 {
		cmd = command.Cmd25WriteMultipleBlock
	}
	if err := c.bus.AdtcStart(cmd, c.blockAddress(start), bus.BlockSize, numBlocks, true); err != nil {
		return Transaction{}, err
	}

	if register.CardStatus(c.bus.Response()).WriteProtectViolation() {
		return Transaction{}, bus.ErrWriteProtected
	}
	return newTransaction(numBlocks), nil
}

// StartWriteBlocks transfers len(src)/512 blocks of the open write
// transaction from src. On error the transaction is terminated and cannot
// be resumed.
func (c *Controller) StartWriteBlocks(t *Transaction, src []byte) error {
	if err := c.bus.WriteBlocks(src); err != nil {
		t.Remain = 0
		return bus.ErrWrite
	}
	t.Remain -= uint16(len(src) / bus.BlockSize)
	return nil
}

// WaitEndOfWrite completes a write transaction. Multi block SPI writes are
// terminated in band with the stop transmission token; on MCI the stop is
// CMD12 through AdtcStop.
func (c *Controller) WaitEndOfWrite(abort bool, t *Transaction) error {
	if err := c.bus.WaitUntilWriteFinished(); err != nil {
		return err
	}
	if abort {
		t.Remain = 0
	} else if t.Remain > 0 {
		return nil
	}

	if t.Total <= 1 {
		return nil
	}
	return c.bus.AdtcStop(command.Cmd12StopTransmission, 0)
}
