// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sigurn/crc16"

	"github.com/open-source-firmware/go-sdmmc/pkg/bus"
	"github.com/open-source-firmware/go-sdmmc/pkg/sdmmc/command"
)

// fakeConn scripts the MISO line and records everything clocked out on
// MOSI, dummy fill bytes included. An exhausted script reads back as an
// idle (0xFF) line.
type fakeConn struct {
	miso []byte
	mosi []byte
}

func (f *fakeConn) Tx(w, r []byte) error {
	f.mosi = append(f.mosi, w...)
	for i := range r {
		if len(f.miso) == 0 {
			r[i] = 0xFF
			continue
		}
		r[i] = f.miso[0]
		f.miso = f.miso[1:]
	}
	return nil
}

func (f *fakeConn) feed(b ...byte) {
	f.miso = append(f.miso, b...)
}

type fakeCS struct {
	level     bool // true = high
	lowCount  int
	highCount int
}

func (f *fakeCS) Low() error {
	f.level = false
	f.lowCount++
	return nil
}

func (f *fakeCS) High() error {
	f.level = true
	f.highCount++
	return nil
}

var xmodem = crc16.MakeTable(crc16.CRC16_XMODEM)

// feedBlock scripts a start token, the payload and the CRC16 trailer the
// way a card answers a block read.
func feedBlock(conn *fakeConn, data []byte) {
	conn.feed(tokenStartBlock)
	conn.feed(data...)
	crc := crc16.Checksum(data, xmodem)
	conn.feed(byte(crc>>8), byte(crc))
}

func count(haystack []byte, needle byte) int {
	n := 0
	for _, b := range haystack {
		if b == needle {
			n++
		}
	}
	return n
}

func TestCRC7(t *testing.T) {
	testCases := []struct {
		name  string
		frame []byte
		want  byte
	}{
		{"CMD0", []byte{0x40, 0x00, 0x00, 0x00, 0x00}, 0x95},
		{"CMD8 0x1AA", []byte{0x48, 0x00, 0x00, 0x01, 0xAA}, 0x87},
		{"CMD17 0", []byte{0x51, 0x00, 0x00, 0x00, 0x00}, 0x55},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := CRC7(tc.frame)
			if got != tc.want {
				t.Errorf("CRC7() = %#02x, want %#02x", got, tc.want)
			}
			if got&1 != 1 {
				t.Errorf("CRC7() = %#02x, end bit not set", got)
			}
		})
	}
}

func TestSendClock(t *testing.T) {
	conn := &fakeConn{}
	cs := &fakeCS{}
	b := New(conn, cs)

	if err := b.SendClock(); err != nil {
		t.Fatalf("SendClock: %v", err)
	}
	if cs.highCount != 1 || cs.lowCount != 1 {
		t.Errorf("CS transitions = %d high, %d low, want 1/1", cs.highCount, cs.lowCount)
	}
	if len(conn.mosi) != 10 || count(conn.mosi, 0xFF) != 10 {
		t.Errorf("MOSI = % x, want 10 x 0xFF", conn.mosi)
	}
	if cs.level {
		t.Error("CS released after SendClock")
	}
}

func TestCommandFrame(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	conn.feed(0xFF, 0x00) // Ncr filler, then a clean R1
	if err := b.SendCommand(command.Cmd16SetBlocklen, 512); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	frame := []byte{0x50, 0x00, 0x00, 0x02, 0x00}
	frame = append(frame, CRC7(frame))
	if !bytes.Contains(conn.mosi, frame) {
		t.Errorf("MOSI % x does not carry frame % x", conn.mosi, frame)
	}
	if got := b.Response(); got != 0 {
		t.Errorf("Response() = %#x, want 0", got)
	}
}

func TestCommandRetriesThenTimesOut(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	// The line stays idle: R1 never loses the error bit.
	err := b.SendCommand(command.Cmd16SetBlocklen, 512)
	if !errors.Is(err, bus.ErrCommandTimeout) {
		t.Fatalf("SendCommand = %v, want command timeout", err)
	}
}

func TestCommandRetryRecovers(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	conn.feed(0xFF, 0x80, 0x80, 0x00)
	if err := b.SendCommand(command.Cmd16SetBlocklen, 512); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
}

func TestIdleBitHandling(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	// CMD0 answers in-idle by design.
	conn.feed(0xFF, 0x01)
	if err := b.SendCommand(command.SpiCmd0GoIdleState, 0); err != nil {
		t.Fatalf("CMD0 in idle: %v", err)
	}

	// A transfer command answering in-idle is a fault.
	conn.feed(0xFF, 0x01)
	err := b.AdtcStart(command.Cmd17ReadSingleBlock, 0, 512, 1, true)
	if !errors.Is(err, bus.ErrWrite) {
		t.Fatalf("CMD17 in idle = %v, want write error", err)
	}
}

func TestR1ErrorTranslation(t *testing.T) {
	testCases := []struct {
		name string
		r1   byte
		want error
	}{
		{"CRC error", 0x08, bus.ErrCommandCrc},
		{"illegal command", 0x04, bus.ErrCommandIndex},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{}
			b := New(conn, &fakeCS{})
			conn.feed(0xFF, tc.r1)
			err := b.SendCommand(command.Cmd16SetBlocklen, 512)
			if !errors.Is(err, tc.want) {
				t.Errorf("SendCommand = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestR7ResponseBody(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	conn.feed(0xFF, 0x01)                   // R1, in idle
	conn.feed(0x00, 0x00, 0x01, 0xAA)       // R7 body, big endian
	if err := b.SendCommand(command.SpiCmd8SendIfCond, 0x1AA); err != nil {
		t.Fatalf("CMD8: %v", err)
	}
	if got := b.Response(); got != 0x1AA {
		t.Errorf("Response() = %#x, want 0x1AA", got)
	}
}

func TestSingleBlockRead(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}

	conn.feed(0xFF, 0x00)       // Ncr filler, clean R1
	conn.feed(0x00, 0x01)       // not a start token, not an error token
	feedBlock(conn, data)

	if err := b.AdtcStart(command.Cmd17ReadSingleBlock, 0, 512, 1, true); err != nil {
		t.Fatalf("AdtcStart: %v", err)
	}
	buf := make([]byte, 512)
	if err := b.ReadBlocks(buf); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if err := b.WaitUntilReadFinished(); err != nil {
		t.Fatalf("WaitUntilReadFinished: %v", err)
	}

	if !bytes.Equal(buf, data) {
		t.Error("payload mismatch")
	}
	if len(conn.miso) != 0 {
		t.Errorf("%d unread MISO bytes: CRC trailer not consumed", len(conn.miso))
	}
}

func TestReadErrorTokens(t *testing.T) {
	testCases := []struct {
		name  string
		token byte
		want  error
	}{
		// CardECCFailed outranks the bare error bit.
		{"ECC failed", 0x05, bus.ErrUnusableCard},
		{"CC error", 0x03, bus.ErrDataCrc},
		{"out of range", 0x09, bus.ErrRead},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{}
			b := New(conn, &fakeCS{})

			data := make([]byte, 512)
			conn.feed(0xFF, 0x00)
			feedBlock(conn, data)   // first block is fine
			conn.feed(tc.token)     // second block aborts

			if err := b.AdtcStart(command.Cmd18ReadMultipleBlock, 0, 512, 2, true); err != nil {
				t.Fatalf("AdtcStart: %v", err)
			}
			err := b.ReadBlocks(make([]byte, 1024))
			if !errors.Is(err, tc.want) {
				t.Errorf("ReadBlocks = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMultiBlockWrite(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	conn.feed(0xFF, 0x00) // command response
	// Three accepted data response tokens; the first two are followed by a
	// busy phase released after two zero reads.
	conn.feed(0x05, 0x00, 0x00, 0xFF)
	conn.feed(0x05, 0x00, 0x00, 0xFF)
	conn.feed(0x05)
	// Busy after the final block, then after the stop token.
	conn.feed(0x00, 0x00, 0xFF)
	conn.feed(0x00, 0x00, 0xFF)

	if err := b.AdtcStart(command.Cmd25WriteMultipleBlock, 0, 512, 3, true); err != nil {
		t.Fatalf("AdtcStart: %v", err)
	}
	if err := b.WriteBlocks(make([]byte, 3*512)); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	if err := b.WaitUntilWriteFinished(); err != nil {
		t.Fatalf("WaitUntilWriteFinished: %v", err)
	}

	if got := count(conn.mosi, tokenStartMultiWrite); got != 3 {
		t.Errorf("%d multi write tokens on the wire, want 3", got)
	}
	if got := count(conn.mosi, tokenStopTransmission); got != 1 {
		t.Errorf("%d stop transmission tokens on the wire, want exactly 1", got)
	}
	// No CMD12 frame may appear: the stop token terminates the transfer.
	if bytes.Contains(conn.mosi, []byte{0x4C}) {
		t.Error("CMD12 frame on the wire")
	}
	if len(conn.miso) != 0 {
		t.Errorf("%d unread MISO bytes", len(conn.miso))
	}
}

func TestSingleBlockWrite(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	conn.feed(0xFF, 0x00)
	conn.feed(0x05, 0x00, 0xFF) // response token, short busy
	conn.feed(0x00, 0x00, 0xFF) // busy check in WaitUntilWriteFinished

	if err := b.AdtcStart(command.Cmd24WriteBlock, 0, 512, 1, true); err != nil {
		t.Fatalf("AdtcStart: %v", err)
	}
	if err := b.WriteBlocks(make([]byte, 512)); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	if err := b.WaitUntilWriteFinished(); err != nil {
		t.Fatalf("WaitUntilWriteFinished: %v", err)
	}

	if got := count(conn.mosi, tokenStopTransmission); got != 0 {
		t.Errorf("%d stop transmission tokens on a single block write", got)
	}
	if got := count(conn.mosi, tokenStartBlock); got < 1 {
		t.Error("missing single block start token")
	}
}

func TestWriteResponseErrors(t *testing.T) {
	testCases := []struct {
		name  string
		token byte
		want  error
	}{
		{"CRC rejected", 0x0B, bus.ErrDataCrc},
		{"write error", 0x0D, bus.ErrWrite},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{}
			b := New(conn, &fakeCS{})

			conn.feed(0xFF, 0x00)
			conn.feed(tc.token)

			if err := b.AdtcStart(command.Cmd24WriteBlock, 0, 512, 1, true); err != nil {
				t.Fatalf("AdtcStart: %v", err)
			}
			err := b.WriteBlocks(make([]byte, 512))
			if !errors.Is(err, tc.want) {
				t.Errorf("WriteBlocks = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReadWordStreamsAcrossBlock(t *testing.T) {
	conn := &fakeConn{}
	b := New(conn, &fakeCS{})

	data := make([]byte, 512)
	data[0] = 0x02 // EXT_CSD style little endian word
	conn.feed(0xFF, 0x00)
	feedBlock(conn, data)

	if err := b.AdtcStart(command.MmcCmd8SendExtCsd, 0, 512, 1, false); err != nil {
		t.Fatalf("AdtcStart: %v", err)
	}
	first, err := b.ReadWord()
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if first != 0x02 {
		t.Errorf("first word = %#x, want 0x02", first)
	}
	for i := 1; i < 128; i++ {
		if _, err := b.ReadWord(); err != nil {
			t.Fatalf("ReadWord %d: %v", i, err)
		}
	}
	if len(conn.miso) != 0 {
		t.Errorf("%d unread MISO bytes: CRC trailer not consumed", len(conn.miso))
	}
}
