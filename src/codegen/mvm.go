package codegen

import (
	"fmt"
	"strings"

	"github.com/illinois-impact/puma-compiler/src/coalescer"
	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

func coalescedSet(op *ir.Operation) *coalescer.Set {
	if op.CoalescedSet == nil {
		return nil
	}
	s, _ := op.CoalescedSet.(*coalescer.Set)
	return s
}

// renderUncoalescedMVM emits a one-hot bitmap over N_CONSTANT_MVMUS_PER_CORE
// with a single bit set at the op's own physical MVMU.
func renderUncoalescedMVM(op *ir.Operation) string {
	bits := make([]byte, common.NConstantMVMUsPerCore)
	for i := range bits {
		bits[i] = '0'
	}
	if op.PMVMU >= 0 && op.PMVMU < len(bits) {
		bits[op.PMVMU] = '1'
	}
	return fmt.Sprintf("mvm(['%s'])\n", string(bits))
}

// renderMVM emits the coalesced leader's bitmap, one bit per occupied
// pMVMU slot in the set.
func renderMVM(m *ir.Model, set *coalescer.Set) string {
	bits := make([]byte, common.NConstantMVMUsPerCore)
	for i := range bits {
		bits[i] = '0'
	}
	for pmvmu, id := range set.Slots {
		if id >= 0 && pmvmu < len(bits) {
			bits[pmvmu] = '1'
		}
	}
	return fmt.Sprintf("mvm(['%s'])\n", string(bits))
}

// renderUncoalescedTraining emits N_TRAINING_MVMUS_PER_CORE separate
// 3-character opType bitstrings, one per pMVMU, with only this op's own
// (pMVMU, opType) bit set.
func renderUncoalescedTraining(op *ir.Operation) string {
	rows := make([]string, common.NTrainingMVMUsPerCore)
	for i := range rows {
		row := []byte{'0', '0', '0'}
		if i == op.PMVMU {
			row[op.TrainingOpType] = '1'
		}
		rows[i] = fmt.Sprintf("'%s'", string(row))
	}
	return fmt.Sprintf("train([%s])\n", strings.Join(rows, ", "))
}

// renderTraining emits the coalesced leader's union bitmap per pMVMU across
// opTypes.
func renderTraining(m *ir.Model, set *coalescer.Set) string {
	rows := make([][]byte, common.NTrainingMVMUsPerCore)
	for i := range rows {
		rows[i] = []byte{'0', '0', '0'}
	}
	for slot, id := range set.Slots {
		if id < 0 {
			continue
		}
		pmvmu := slot / 3
		opType := slot % 3
		if pmvmu < len(rows) {
			rows[pmvmu][opType] = '1'
		}
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = fmt.Sprintf("'%s'", string(r))
	}
	return fmt.Sprintf("train([%s])\n", strings.Join(parts, ", "))
}

// renderALU emits the vector ALU mnemonic; MULI uses the function name
// alui but keeps the 'mul' opname string, binary ops include r2, unary and
// immediate ops omit it.
func renderALU(op *ir.Operation) string {
	fn := "alu"
	if op.ALUOp == ir.ALUMulImmediate {
		fn = "alui"
	}
	args := fmt.Sprintf("'%s', d1=%d, r1=%d", op.ALUOp.Mnemonic(), op.Register, op.Operand(0).Register)
	switch {
	case op.ALUOp == ir.ALUMulImmediate:
		args += fmt.Sprintf(", imm=%g", op.Immediate)
	case op.NumOperands() > 1:
		args += fmt.Sprintf(", r2=%d", op.Operand(1).Register)
	}
	args += fmt.Sprintf(", vec=%d", op.Length)
	return fmt.Sprintf("%s(%s)\n", fn, args)
}
