// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package register

import "testing"

// csdV2 builds an SD 2.0 CSD with the given C_SIZE.
func csdV2(cSize uint32, tranSpeed uint8) Csd {
	var b [16]byte
	b[0] = 1 << 6 // CSD_STRUCTURE = 1
	b[3] = tranSpeed
	b[7] = byte(cSize>>16) & 0x3F
	b[8] = byte(cSize >> 8)
	b[9] = byte(cSize)
	return CsdFromBytes(b[:])
}

// csdV1 builds a CSD 1.0 with the legacy size fields.
func csdV1(cSize uint32, cSizeMult, readBlLen, tranSpeed uint8) Csd {
	var b [16]byte
	b[3] = tranSpeed
	b[5] = readBlLen & 0x0F
	b[6] = byte(cSize>>10) & 0x03
	b[7] = byte(cSize >> 2)
	b[8] = byte(cSize) << 6
	b[9] = (cSizeMult >> 1) & 0x03
	b[10] = cSizeMult << 7
	return CsdFromBytes(b[:])
}

// csdMmc builds an MMC CSD with the given SPEC_VERS and C_SIZE.
func csdMmc(specVers uint8, cSize uint32, tranSpeed uint8) Csd {
	c := csdV1(cSize, 0, 0, tranSpeed)
	c[0] = 0b10<<6 | specVers<<2
	return c
}

func TestCsdV2Decode(t *testing.T) {
	c := csdV2(0x3B37, 0x32)

	if got := c.StructureVersion(); got != CsdStructureV2 {
		t.Errorf("StructureVersion() = %d, want %d", got, CsdStructureV2)
	}
	if got := c.TranSpeed(); got != 0x32 {
		t.Errorf("TranSpeed() = %#x, want 0x32", got)
	}
	if got := c.CSizeV2(); got != 0x3B37 {
		t.Errorf("CSizeV2() = %#x, want 0x3B37", got)
	}
	want := uint32(0x3B37+1) * 512
	if got := c.SdCapacityKB(); got != want {
		t.Errorf("SdCapacityKB() = %d, want %d", got, want)
	}
}

func TestCsdV1Decode(t *testing.T) {
	c := csdV1(2047, 7, 9, 0x32)

	if got := c.StructureVersion(); got != 0 {
		t.Errorf("StructureVersion() = %d, want 0", got)
	}
	if got := c.CSize(); got != 2047 {
		t.Errorf("CSize() = %d, want 2047", got)
	}
	if got := c.CSizeMult(); got != 7 {
		t.Errorf("CSizeMult() = %d, want 7", got)
	}
	if got := c.ReadBlLen(); got != 9 {
		t.Errorf("ReadBlLen() = %d, want 9", got)
	}
	want := uint32(2047+1) * (7 + 2) * (1 << 9) / 1024
	if got := c.SdCapacityKB(); got != want {
		t.Errorf("SdCapacityKB() = %d, want %d", got, want)
	}
}

func TestCsdMmcDecode(t *testing.T) {
	c := csdMmc(4, 0xFFF, 0x32)

	if got := c.MmcSpecVersion(); got != 4 {
		t.Errorf("MmcSpecVersion() = %d, want 4", got)
	}
	// 0xFFF flags a high capacity device, capacity comes from EXT_CSD.
	if got := c.CSize(); got != 0xFFF {
		t.Errorf("CSize() = %#x, want 0xFFF", got)
	}
}

func TestCsdFromWordsMatchesBytes(t *testing.T) {
	raw := []byte{
		0x40, 0x0E, 0x00, 0x32, 0x5B, 0x59, 0x00, 0x00,
		0x3B, 0x37, 0x7F, 0x80, 0x0A, 0x40, 0x40, 0xC3,
	}
	fromBytes := CsdFromBytes(raw)
	fromWords := CsdFromWords(fromBytes.Words())
	if fromBytes != fromWords {
		t.Errorf("CsdFromWords(Words()) = %v, want %v", fromWords, fromBytes)
	}
	if got := fromWords.CSizeV2(); got != 0x3B37 {
		t.Errorf("CSizeV2() = %#x, want 0x3B37", got)
	}
}
