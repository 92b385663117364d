// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdmmc

// Transaction tracks the progress of a block transfer across the
// init/start/wait call triplet. Remain reaching zero is terminal; transfer
// errors force it to zero so a broken transfer cannot be resumed.
type Transaction struct {
	Total  uint16
	Remain uint16
}

func newTransaction(numBlocks uint16) Transaction {
	return Transaction{Total: numBlocks, Remain: numBlocks}
}
