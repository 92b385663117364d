// Copyright (c) 2022 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"log"

	"github.com/alecthomas/kong"
	"periph.io/x/host/v3"

	"github.com/open-source-firmware/go-sdmmc/pkg/cmdutil"
)

const (
	programName = "sdmcictl"
	programDesc = "SD/MMC/SDIO card control over SPI"
)

func main() {
	// Parse kong flags and sub-commands
	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.NamedMapper("accessiblefile", cmdutil.AccessibleFileMapper()),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if _, err := host.Init(); err != nil {
		log.Fatalf("host.Init: %v", err)
	}

	ctrl, closePort, err := openSlot()
	if err != nil {
		log.Fatalf("openSlot: %v", err)
	}
	defer closePort()

	if err := ctrl.SelectSlot(); err != nil {
		log.Fatalf("SelectSlot: %v", err)
	}

	// Run the command
	err = ctx.Run(&context{ctrl: ctrl, verbose: cli.Verbose})
	ctx.FatalIfErrorf(err)
}
