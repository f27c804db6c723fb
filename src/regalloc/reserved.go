package regalloc

import (
	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// inputRegister returns the reserved input-register address a matrix op's
// operandIdx-th operand is read from, per original_source/src/regalloc.cpp's
// exact formulas.
func inputRegister(op *ir.Operation, operandIdx int) (int, error) {
	pMVMU := op.PMVMU
	switch op.Kind {
	case ir.KindMVM:
		return common.InputRegistersStartAddress + pMVMU*common.MVMUDim, nil
	case ir.KindTrainingMatrix:
		switch op.TrainingOpType {
		case ir.FwdMVM:
			return common.InputRegistersStartAddress + pMVMU*common.NTrainingOperations*common.MVMUDim, nil
		case ir.BwdMVMTranspose:
			return common.InputRegistersStartAddress + (pMVMU*common.NTrainingOperations+1)*common.MVMUDim, nil
		case ir.OuterProduct:
			switch operandIdx {
			case 0:
				return common.InputRegistersStartAddress + (pMVMU*common.NTrainingOperations+2)*common.MVMUDim, nil
			case 1:
				return common.OutputRegistersStartAddress + (pMVMU*common.NTrainingOperations+2)*common.MVMUDim, nil
			}
		}
	}
	return 0, errors.Errorf("regalloc: no reserved input register formula for %s operand %d", op, operandIdx)
}

// outputRegister returns the reserved output-register address a matrix
// producer writes to; OuterProduct never writes one.
func outputRegister(op *ir.Operation) (int, bool, error) {
	pMVMU := op.PMVMU
	switch op.Kind {
	case ir.KindMVM:
		return common.OutputRegistersStartAddress + pMVMU*common.MVMUDim, true, nil
	case ir.KindTrainingMatrix:
		switch op.TrainingOpType {
		case ir.FwdMVM:
			return common.OutputRegistersStartAddress + pMVMU*common.NTrainingOperations*common.MVMUDim, true, nil
		case ir.BwdMVMTranspose:
			return common.OutputRegistersStartAddress + (pMVMU*common.NTrainingOperations+1)*common.MVMUDim, true, nil
		case ir.OuterProduct:
			return 0, false, nil
		}
	}
	return 0, false, errors.Errorf("regalloc: no reserved output register formula for %s", op)
}

// reservedOwner records the position span, within one core's linearized op
// list, that one operation holds a reserved register address: defPos is
// where the address is written (an operand-owner's own position in the list,
// or the matrix op's position when the operand is not in this core's list;
// the matrix op's own position for its output), lastPos is the last position
// it must still
// hold that value (the matrix op's position again for an operand, or the
// furthest scheduled reader for an output, since insertCopies guarantees a
// matrix operand has exactly one use point but an output can have several).
type reservedOwner struct {
	op              *ir.Operation
	defPos, lastPos int
}

// assignReservedRegisters runs passes 1 and 2 independently per physical
// core: every matrix op's operands get their reserved input-register
// address, and every matrix producer gets its reserved output-register
// address. Once every address is assigned, each core's owners are checked
// pairwise for overlapping live ranges on the same address -- the
// Linearizer is supposed to keep two reserved-register producers on the
// same pMVMU far enough apart that this never happens, and a violation here
// means it failed to.
func (r *RegisterAllocator) assignReservedRegisters() error {
	for key, ops := range r.CoreOps {
		if err := r.assignReservedRegistersForCore(key[0], key[1], ops); err != nil {
			return err
		}
	}
	return nil
}

func (r *RegisterAllocator) assignReservedRegistersForCore(pTile, pCore int, ops []ir.OpID) error {
	pos := make(map[ir.OpID]int, len(ops))
	for i, id := range ops {
		pos[id] = i
	}

	byAddress := map[int][]reservedOwner{}

	for i, id := range ops {
		op := r.Model.Ops[id]
		if !op.IsMatrixOp() || !op.HasPMVMU() {
			continue
		}
		for idx := 0; idx < op.NumOperands(); idx++ {
			operand := op.Operand(idx)
			addr, err := inputRegister(op, idx)
			if err != nil {
				return err
			}
			if err := r.setRegister(operand, addr); err != nil {
				return err
			}
			defPos := i
			if p, ok := pos[operand.ID]; ok {
				defPos = p
			}
			byAddress[addr] = append(byAddress[addr], reservedOwner{op: operand, defPos: defPos, lastPos: i})
		}

		addr, ok, err := outputRegister(op)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := r.setRegister(op, addr); err != nil {
			return err
		}
		lastPos := i
		for _, user := range op.Users() {
			if p, ok := pos[user.ID]; ok && p > lastPos {
				lastPos = p
			}
		}
		byAddress[addr] = append(byAddress[addr], reservedOwner{op: op, defPos: i, lastPos: lastPos})
	}

	for addr, owners := range byAddress {
		for a := 0; a < len(owners); a++ {
			for b := a + 1; b < len(owners); b++ {
				oa, ob := owners[a], owners[b]
				if oa.op.ID == ob.op.ID {
					continue
				}
				if oa.defPos <= ob.lastPos && ob.defPos <= oa.lastPos {
					return errors.Errorf(
						"regalloc: live-range conflict on reserved register %d between %s and %s on core (%d,%d)",
						addr, oa.op, ob.op, pTile, pCore)
				}
			}
		}
	}
	return nil
}

func (r *RegisterAllocator) setRegister(op *ir.Operation, addr int) error {
	if op.HasRegister() && op.Register != addr {
		return errors.Errorf("regalloc: %s already holds register %d, cannot also assign %d (overlapping reserved live ranges)", op, op.Register, addr)
	}
	op.SetRegister(addr)
	return nil
}
