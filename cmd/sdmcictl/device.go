// Copyright (c) 2022 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc"
	spibus "github.com/open-source-firmware/go-sdmmc/pkg/bus/spi"
)

// gpioCS adapts a periph output pin to the backend chip select interface.
type gpioCS struct {
	pin gpio.PinOut
}

func (p gpioCS) Low() error  { return p.pin.Out(gpio.Low) }
func (p gpioCS) High() error { return p.pin.Out(gpio.High) }

// gpioLevel adapts a periph input pin to the controller pin interface.
type gpioLevel struct {
	pin gpio.PinIn
}

func (p gpioLevel) IsHigh() (bool, error) {
	return p.pin.Read() == gpio.High, nil
}

func levelPin(name string) (sdmmc.Pin, error) {
	if name == "" {
		return nil, nil
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no GPIO named %q", name)
	}
	if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, err
	}
	return gpioLevel{pin: pin}, nil
}

// openSlot opens the SPI port and wires the chip select and slot pins into
// a controller. The port must leave chip select to us: an SD command frame
// spans several transfers and CS has to stay low across all of them.
func openSlot() (*sdmmc.Controller, func(), error) {
	port, err := spireg.Open(cli.Device.Port)
	if err != nil {
		return nil, nil, err
	}
	closePort := func() { port.Close() }

	freq := physic.Frequency(cli.Speed) * physic.Hertz
	conn, err := port.Connect(freq, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		closePort()
		return nil, nil, err
	}

	csPin := gpioreg.ByName(cli.CS)
	if csPin == nil {
		closePort()
		return nil, nil, fmt.Errorf("no GPIO named %q", cli.CS)
	}
	if err := csPin.Out(gpio.High); err != nil {
		closePort()
		return nil, nil, err
	}

	wp, err := levelPin(cli.WriteProtectPin)
	if err != nil {
		closePort()
		return nil, nil, err
	}
	detect, err := levelPin(cli.DetectPin)
	if err != nil {
		closePort()
		return nil, nil, err
	}

	backend := spibus.New(conn, gpioCS{pin: csPin})
	if err := backend.Init(); err != nil {
		closePort()
		return nil, nil, err
	}

	ctrl := sdmmc.NewController(backend, sdmmc.Config{
		WriteProtect:           wp,
		WriteProtectActiveHigh: cli.WriteProtectActiveHigh,
		Detect:                 detect,
		DetectActiveHigh:       cli.DetectActiveHigh,
		ProbeSDIO:              cli.SDIO,
	})
	return ctrl, closePort, nil
}
