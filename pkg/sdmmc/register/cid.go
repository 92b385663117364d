// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

import (
	"bytes"
	"encoding/binary"
)

// Cid is the decoded 128-bit Card Identification register.
type Cid struct {
	ManufacturerID   uint8
	OEMApplicationID uint16
	prodName         [5]byte
	productRev       byte
	SerialNumber     uint32
	date             [2]byte
}

// CidFromWords decodes the 136-bit R2 words of CMD2/CMD10.
func CidFromWords(w [4]uint32) Cid {
	var b [16]byte
	for i, v := range w {
		b[i*4] = byte(v >> 24)
		b[i*4+1] = byte(v >> 16)
		b[i*4+2] = byte(v >> 8)
		b[i*4+3] = byte(v)
	}
	return Cid{
		ManufacturerID:   b[0],
		OEMApplicationID: binary.BigEndian.Uint16(b[1:3]),
		prodName:         [5]byte{b[3], b[4], b[5], b[6], b[7]},
		productRev:       b[8],
		SerialNumber:     binary.BigEndian.Uint32(b[9:13]),
		date:             [2]byte{b[13], b[14]},
	}
}

// ProductName returns the product name, trimmed at the first NUL.
func (c *Cid) ProductName() string {
	name := c.prodName[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

// ProductRevision returns the n.m product revision.
func (c *Cid) ProductRevision() (n, m uint8) {
	return c.productRev >> 4, c.productRev & 0x0F
}

// ManufacturingDate returns the year and month encoded in the CID.
func (c *Cid) ManufacturingDate() (year int, month int) {
	year = 2000 + int(c.date[0]&0x0F)<<4 + int(c.date[1]>>4)
	month = int(c.date[1] & 0x0F)
	return year, month
}
