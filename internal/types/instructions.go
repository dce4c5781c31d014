/*

This file contains the instruction types produced by the position adapters.
Instructions are opaque to the core: they are handed to the safe executor,
which runs them in order and requires every one of them to succeed.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Operation selects how the safe performs a single instruction.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

// Instruction is one transaction to be executed by the custodial safe.
type Instruction struct {
	To        common.Address `json:"to"`
	Value     sdkmath.Int    `json:"value"`
	Data      []byte         `json:"data"`
	Operation Operation      `json:"operation"`
}

// NewCall builds a plain call instruction with zero value attached.
func NewCall(to common.Address, data []byte) Instruction {
	return Instruction{
		To:        to,
		Value:     sdkmath.ZeroInt(),
		Data:      data,
		Operation: OperationCall,
	}
}
