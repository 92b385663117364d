// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import "testing"

// every descriptor of the table, for the class exclusion properties.
var table = []struct {
	name string
	cmd  Command
}{
	{"MciCmd0GoIdleState", MciCmd0GoIdleState},
	{"SpiCmd0GoIdleState", SpiCmd0GoIdleState},
	{"MciCmd1SendOpCond", MciCmd1SendOpCond},
	{"SpiCmd1SendOpCond", SpiCmd1SendOpCond},
	{"Cmd2AllSendCid", Cmd2AllSendCid},
	{"MmcCmd3SetRelativeAddr", MmcCmd3SetRelativeAddr},
	{"SdCmd3SendRelativeAddr", SdCmd3SendRelativeAddr},
	{"Cmd5SendOpCond", Cmd5SendOpCond},
	{"MmcCmd6Switch", MmcCmd6Switch},
	{"SdCmd6SwitchFunc", SdCmd6SwitchFunc},
	{"Cmd7SelectCard", Cmd7SelectCard},
	{"MmcCmd8SendExtCsd", MmcCmd8SendExtCsd},
	{"SdCmd8SendIfCond", SdCmd8SendIfCond},
	{"SpiCmd8SendIfCond", SpiCmd8SendIfCond},
	{"MciCmd9SendCsd", MciCmd9SendCsd},
	{"SpiCmd9SendCsd", SpiCmd9SendCsd},
	{"Cmd10SendCid", Cmd10SendCid},
	{"SpiCmd10SendCid", SpiCmd10SendCid},
	{"Cmd12StopTransmission", Cmd12StopTransmission},
	{"Cmd13SendStatus", Cmd13SendStatus},
	{"Cmd15GoInactiveState", Cmd15GoInactiveState},
	{"Cmd16SetBlocklen", Cmd16SetBlocklen},
	{"Cmd17ReadSingleBlock", Cmd17ReadSingleBlock},
	{"Cmd18ReadMultipleBlock", Cmd18ReadMultipleBlock},
	{"Cmd24WriteBlock", Cmd24WriteBlock},
	{"Cmd25WriteMultipleBlock", Cmd25WriteMultipleBlock},
	{"Cmd52IoRwDirect", Cmd52IoRwDirect},
	{"Cmd53IoReadByteExtended", Cmd53IoReadByteExtended},
	{"Cmd53IoWriteByteExtended", Cmd53IoWriteByteExtended},
	{"Cmd53IoReadBlockExtended", Cmd53IoReadBlockExtended},
	{"Cmd53IoWriteBlockExtended", Cmd53IoWriteBlockExtended},
	{"Cmd55AppCmd", Cmd55AppCmd},
	{"Acmd6SetBusWidth", Acmd6SetBusWidth},
	{"MciAcmd41SendOpCond", MciAcmd41SendOpCond},
	{"SpiAcmd41SendOpCond", SpiAcmd41SendOpCond},
	{"Acmd51SendScr", Acmd51SendScr},
	{"SpiCmd58ReadOcr", SpiCmd58ReadOcr},
	{"SpiCmd59CrcOnOff", SpiCmd59CrcOnOff},
}

func TestResponseClassExclusion(t *testing.T) {
	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			if tc.cmd.Has8BitResponse() && (tc.cmd.Has32BitResponse() || tc.cmd.Has136BitResponse()) {
				t.Errorf("%s encodes more than one response class", tc.name)
			}
			if tc.cmd.Has32BitResponse() && tc.cmd.Has136BitResponse() {
				t.Errorf("%s encodes both 32-bit and 136-bit responses", tc.name)
			}
		})
	}
}

func TestBlockModeExclusion(t *testing.T) {
	for _, tc := range table {
		if tc.cmd.SingleBlock() && tc.cmd.MultiBlock() {
			t.Errorf("%s claims both single and multi block transfers", tc.name)
		}
	}
}

func TestIndex(t *testing.T) {
	testCases := []struct {
		name string
		cmd  Command
		want uint8
	}{
		{"CMD0", MciCmd0GoIdleState, 0},
		{"CMD8", SdCmd8SendIfCond, 8},
		{"CMD17", Cmd17ReadSingleBlock, 17},
		{"CMD25", Cmd25WriteMultipleBlock, 25},
		{"ACMD41", MciAcmd41SendOpCond, 41},
		{"CMD53", Cmd53IoWriteBlockExtended, 53},
		{"CMD59", SpiCmd59CrcOnOff, 59},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cmd.Index(); got != tc.want {
				t.Errorf("Index() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	testCases := []struct {
		name  string
		cmd   Command
		check func(Command) bool
		want  bool
	}{
		{"CMD0 MCI has no response", MciCmd0GoIdleState, Command.HasResponse, false},
		{"CMD0 MCI is open drain", MciCmd0GoIdleState, Command.OpenDrain, true},
		{"CMD1 has 32-bit response", MciCmd1SendOpCond, Command.Has32BitResponse, true},
		{"CMD1 response is not CRC protected", MciCmd1SendOpCond, Command.ExpectsValidCRC, false},
		{"CMD2 has 136-bit response", Cmd2AllSendCid, Command.Has136BitResponse, true},
		{"CMD7 may be busy", Cmd7SelectCard, Command.MayBeBusy, true},
		{"CMD8 SD has 32-bit response", SdCmd8SendIfCond, Command.Has32BitResponse, true},
		{"CMD9 MCI has 136-bit response", MciCmd9SendCsd, Command.Has136BitResponse, true},
		{"CMD9 SPI is a single block read", SpiCmd9SendCsd, Command.SingleBlock, true},
		{"CMD12 may be busy", Cmd12StopTransmission, Command.MayBeBusy, true},
		{"CMD13 expects valid CRC", Cmd13SendStatus, Command.ExpectsValidCRC, true},
		{"CMD17 reads a single block", Cmd17ReadSingleBlock, Command.SingleBlock, true},
		{"CMD17 is not a write", Cmd17ReadSingleBlock, Command.DataWrite, false},
		{"CMD18 reads multiple blocks", Cmd18ReadMultipleBlock, Command.MultiBlock, true},
		{"CMD24 is a write", Cmd24WriteBlock, Command.DataWrite, true},
		{"CMD25 writes multiple blocks", Cmd25WriteMultipleBlock, Command.MultiBlock, true},
		{"CMD52 has 8-bit response", Cmd52IoRwDirect, Command.Has8BitResponse, true},
		{"CMD53 read is byte mode", Cmd53IoReadByteExtended, Command.SdioByteMode, true},
		{"CMD53 write block mode", Cmd53IoWriteBlockExtended, Command.SdioBlockMode, true},
		{"CMD53 write is a write", Cmd53IoWriteBlockExtended, Command.DataWrite, true},
		{"ACMD41 MCI is open drain", MciAcmd41SendOpCond, Command.OpenDrain, true},
		{"CMD58 has 32-bit response", SpiCmd58ReadOcr, Command.Has32BitResponse, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.check(tc.cmd); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestToleratesIdle(t *testing.T) {
	testCases := []struct {
		name string
		cmd  Command
		want bool
	}{
		{"CMD0", SpiCmd0GoIdleState, true},
		{"CMD1", SpiCmd1SendOpCond, true},
		{"CMD8", SpiCmd8SendIfCond, true},
		{"ACMD41", SpiAcmd41SendOpCond, true},
		{"CMD55", Cmd55AppCmd, true},
		{"CMD58", SpiCmd58ReadOcr, true},
		{"CMD17", Cmd17ReadSingleBlock, false},
		{"CMD24", Cmd24WriteBlock, false},
		{"CMD16", Cmd16SetBlocklen, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cmd.ToleratesIdle(); got != tc.want {
				t.Errorf("ToleratesIdle() = %v, want %v", got, tc.want)
			}
		})
	}
}
