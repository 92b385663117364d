// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sdmmc implements the card initialization state machine and the
// block transfer engine for SD, MMC and SDIO removable cards, on top of the
// transport capability set of the bus package.
package sdmmc

import (
	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/register"
)

// Kind is a bit set describing what was detected in the slot. An SD-COMBO
// card carries both KindSD and KindSDIO.
type Kind uint8

const (
	KindSD Kind = 1 << iota
	KindMMC
	KindSDIO
	KindHighCapacity
)

// IsSD reports an SD memory card.
func (k Kind) IsSD() bool { return k&KindSD != 0 }

// IsMMC reports an MMC device.
func (k Kind) IsMMC() bool { return k&KindMMC != 0 }

// IsSDIO reports an SDIO card.
func (k Kind) IsSDIO() bool { return k&KindSDIO != 0 }

// IsHighCapacity reports block unit addressing (SDHC/SDXC, sector mode MMC).
func (k Kind) IsHighCapacity() bool { return k&KindHighCapacity != 0 }

// State is the lifecycle state of the slot.
type State uint8

const (
	StateNoCard State = iota
	// StateDebounce is reserved for hot plug debouncing. No code path
	// enters it today; selecting a slot left in this state behaves like a
	// fresh NoCard insertion.
	StateDebounce
	StateInit
	StateReady
	StateUnusable
)

// Version identifies the negotiated card specification version. The MMC
// values are ordered so that feature gates can compare against them.
type Version uint8

const (
	VersionUnknown Version = iota
	SDVersion1_0
	SDVersion1_10
	SDVersion2_0
	MMCVersion1_2
	MMCVersion1_4
	MMCVersion2_2
	MMCVersion3_0
	MMCVersion4_0
)

func (v Version) String() string {
	switch v {
	case SDVersion1_0:
		return "SD 1.0"
	case SDVersion1_10:
		return "SD 1.10"
	case SDVersion2_0:
		return "SD 2.0"
	case MMCVersion1_2:
		return "MMC 1.2"
	case MMCVersion1_4:
		return "MMC 1.4"
	case MMCVersion2_2:
		return "MMC 2.2"
	case MMCVersion3_0:
		return "MMC 3.0"
	case MMCVersion4_0:
		return "MMC 4.0+"
	}
	return "unknown"
}

// Card models the device in the slot. Only the Controller mutates it.
type Card struct {
	Kind    Kind
	Version Version

	// RCA is the relative card address assigned during identification.
	RCA uint16

	// Clock is the negotiated bus clock in Hz. Starts at the 400 kHz
	// identification rate and never exceeds 52 MHz.
	Clock uint32

	// CapacityKB is valid once the card reaches StateReady. For high
	// capacity MMC devices it holds the EXT_CSD SEC_COUNT unchanged, a
	// count of 512-byte sectors rather than KB.
	CapacityKB uint32

	Width     bus.BusWidth
	HighSpeed bool

	CSD register.Csd
	CID register.Cid

	State State
}
