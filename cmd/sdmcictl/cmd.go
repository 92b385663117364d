// Copyright (c) 2022 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc"
)

type context struct {
	ctrl    *sdmmc.Controller
	verbose bool
}

type infoCmd struct{}

type readCmd struct {
	Start  uint32 `optional:"" default:"0" help:"First block to read"`
	Count  uint16 `optional:"" default:"1" help:"Number of blocks to read"`
	Output string `arg:"" default:"-" type:"accessiblefile" help:"Output file, - for stdout"`
}

type writeCmd struct {
	Start uint32 `optional:"" default:"0" help:"First block to write"`
	Input string `arg:"" required:"" type:"accessiblefile" help:"Input file, - for stdin"`
}

type metricsCmd struct{}

var cli struct {
	Device struct {
		Port    string     `arg:"" required:"" help:"SPI port (e.g. /dev/spidev0.0)"`
		Info    infoCmd    `cmd:"" default:"1" help:"Print detected card information"`
		Read    readCmd    `cmd:"" help:"Read blocks from the card"`
		Write   writeCmd   `cmd:"" help:"Write blocks to the card"`
		Metrics metricsCmd `cmd:"" help:"Print card state in OpenMetrics format"`
	} `arg:""`
	CS                     string `required:"" help:"Chip select GPIO name"`
	Speed                  int64  `optional:"" default:"400000" help:"SPI clock frequency in Hz"`
	WriteProtectPin        string `optional:"" help:"Write protect GPIO name"`
	WriteProtectActiveHigh bool   `optional:"" help:"Write protect is active high"`
	DetectPin              string `optional:"" help:"Card detect GPIO name"`
	DetectActiveHigh       bool   `optional:"" help:"Card detect is active high"`
	SDIO                   bool   `optional:"" help:"Probe for SDIO cards during identification"`
	Verbose                bool   `optional:"" short:"v" help:"Dump raw registers"`
}

func kindString(k sdmmc.Kind) string {
	s := ""
	if k.IsSD() {
		s += "SD "
	}
	if k.IsMMC() {
		s += "MMC "
	}
	if k.IsSDIO() {
		s += "SDIO "
	}
	if k.IsHighCapacity() {
		s += "(high capacity)"
	}
	return s
}

func (i infoCmd) Run(ctx *context) error {
	card := ctx.ctrl.Card()
	cid := card.CID

	revN, revM := cid.ProductRevision()
	fmt.Printf("Kind:      %s\n", kindString(card.Kind))
	fmt.Printf("Version:   %s\n", card.Version)
	fmt.Printf("Product:   %s (rev %d.%d)\n", cid.ProductName(), revN, revM)
	fmt.Printf("Serial:    %08x\n", cid.SerialNumber)
	fmt.Printf("Capacity:  %d KB\n", card.CapacityKB)
	fmt.Printf("Clock:     %d Hz\n", card.Clock)
	fmt.Printf("Bus width: %d bit\n", card.Width)
	fmt.Printf("HighSpeed: %v\n", card.HighSpeed)

	if ctx.verbose {
		spew.Dump(card.CSD)
		spew.Dump(card.CID)
	}
	return nil
}

func (r readCmd) Run(ctx *context) error {
	out := os.Stdout
	if r.Output != "-" {
		f, err := os.Create(r.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	buf := make([]byte, int(r.Count)*bus.BlockSize)
	txn, err := ctx.ctrl.InitReadBlocks(r.Start, r.Count)
	if err != nil {
		return err
	}
	if err := ctx.ctrl.StartRead(&txn, buf); err != nil {
		return err
	}
	if err := ctx.ctrl.WaitEndOfRead(false, &txn); err != nil {
		return err
	}
	_, err = out.Write(buf)
	return err
}

func (w writeCmd) Run(ctx *context) error {
	in := os.Stdin
	if w.Input != "-" {
		f, err := os.Open(w.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	if len(data)%bus.BlockSize != 0 {
		// Pad the tail block instead of refusing short input.
		data = append(data, make([]byte, bus.BlockSize-len(data)%bus.BlockSize)...)
	}
	count := uint16(len(data) / bus.BlockSize)

	txn, err := ctx.ctrl.InitWriteBlocks(w.Start, count)
	if err != nil {
		return err
	}
	if err := ctx.ctrl.StartWriteBlocks(&txn, data); err != nil {
		return err
	}
	return ctx.ctrl.WaitEndOfWrite(false, &txn)
}
