// Package common holds the fixed architectural constants of the PUMA
// accelerator: MVMU/core/tile sizing and the derived register file layout.
// These mirror the #define constants of the upstream C++ compiler and are
// never overridden at runtime.
package common

const (
	MVMUDim = 128

	NConstantMVMUsPerCore = 6
	NTrainingMVMUsPerCore = 2
	NCoresPerTile         = 8

	MaxLoadStoreWidth = 16
	MaxSendRecvWidth  = 16

	NTrainingOperations = 3
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NInputRegisters is the width of the reserved input-register window per
// core, sized to accommodate whichever of the inference or training MVMU
// layouts needs more input bandwidth.
var NInputRegisters = MVMUDim * maxInt(NConstantMVMUsPerCore, NTrainingOperations*NTrainingMVMUsPerCore)

// NOutputRegisters mirrors NInputRegisters; the reserved windows are the
// same width by construction.
var NOutputRegisters = NInputRegisters

const InputRegistersStartAddress = 0

var OutputRegistersStartAddress = InputRegistersStartAddress + NInputRegisters

var RegisterFileStartAddress = OutputRegistersStartAddress + NOutputRegisters

var RegisterFileSize = NInputRegisters + NOutputRegisters

var RegistersPerCore = NInputRegisters + NOutputRegisters + RegisterFileSize

// NTiles returns the number of MVMUDim-wide tiles needed to cover length
// scalar elements, zero-padding the last tile as necessary.
func NTiles(length int) int {
	return (length-1)/MVMUDim + 1
}
