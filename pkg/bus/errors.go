// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import "errors"

// Environmental and lifecycle faults.
var (
	ErrNoCard               = errors.New("no card present in slot")
	ErrUnusableCard         = errors.New("card is unusable")
	ErrCouldNotSelectDevice = errors.New("could not select device")
	ErrPinLevel             = errors.New("could not read pin level")
)

// Per-command protocol faults.
var (
	ErrCommandCrc     = errors.New("command response CRC error")
	ErrCommandIndex   = errors.New("illegal command index")
	ErrCommandTimeout = errors.New("command timeout")
)

// Per-block data phase faults.
var (
	ErrDataCrc     = errors.New("data CRC error")
	ErrDataTimeout = errors.New("data timeout")
)

// Generic transfer faults.
var (
	ErrRead           = errors.New("read error")
	ErrWrite          = errors.New("write error")
	ErrWriteProtected = errors.New("card is write protected")
	ErrGroupBusy      = errors.New("switch function group is busy")
)

// Initialization phase faults.
var (
	ErrCouldNotSetBusWidth    = errors.New("could not set bus width")
	ErrCouldNotSetToHighSpeed = errors.New("could not set to high speed")
	ErrCouldNotCheckHighSpeed = errors.New("could not check high speed capability")
)

// Caller and implementation faults.
var (
	ErrTimedOut             = errors.New("operation timed out")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// SDIO specific faults.
var (
	ErrTupleNotFound     = errors.New("CIA tuple not found")
	ErrIncorrectDataSize = errors.New("incorrect data size")
)
