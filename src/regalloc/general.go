package regalloc

import (
	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// generalAllocState tracks pass 3's per-core bookkeeping: which general
// registers are free, which producers currently hold one, and which
// producers have been spilled to tile memory along with any currently-live
// reload of them.
type generalAllocState struct {
	free         []bool               // index 0 == RegisterFileStartAddress
	liveNow      map[ir.OpID]int      // producer/reload -> register address
	spillStore   map[ir.OpID]ir.OpID  // producer -> the Store op holding its spilled value
	reloadOf     map[ir.OpID]ir.OpID  // reload op -> original producer
	activeReload map[ir.OpID]ir.OpID  // original producer -> its current live reload op, if any
	remaining    map[ir.OpID]int      // producer -> remaining consumer count in this core's list
	spillAddr    int                  // next free tile-memory address for spill stores on this core's tile
}

func newGeneralAllocState(size, spillAddrStart int) *generalAllocState {
	free := make([]bool, size)
	for i := range free {
		free[i] = true
	}
	return &generalAllocState{
		free:         free,
		liveNow:      make(map[ir.OpID]int),
		spillStore:   make(map[ir.OpID]ir.OpID),
		reloadOf:     make(map[ir.OpID]ir.OpID),
		activeReload: make(map[ir.OpID]ir.OpID),
		remaining:    make(map[ir.OpID]int),
		spillAddr:    spillAddrStart,
	}
}

func (s *generalAllocState) allocate(length int) (int, bool) {
	run := 0
	for i, f := range s.free {
		if f {
			run++
			if run == length {
				start := i - length + 1
				for j := start; j <= i; j++ {
					s.free[j] = false
				}
				return start, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

func (s *generalAllocState) release(addr, length int) {
	base := addr - common.RegisterFileStartAddress
	for i := base; i < base+length; i++ {
		if i >= 0 && i < len(s.free) {
			s.free[i] = true
		}
	}
}

func (s *generalAllocState) allocSpillAddress(size int) int {
	addr := s.spillAddr
	s.spillAddr += size
	return addr
}

// killCandidateGuard reports whether a live reload of producer may be
// killed given the operation currently being processed: only when the
// consumer uses neither the original producer's value nor the reload's
// value. This is the literal reading of the upstream `!uses(a) && !uses(b)`
// guard (see DESIGN.md Open Question 2).
func killCandidateGuard(current *ir.Operation, producer, reload *ir.Operation) bool {
	return !current.Uses(producer) && !current.Uses(reload)
}

// allocateGeneralRegisters runs pass 3 for one physical core's linearized
// operation list, returning the list with any spill Store/reload Load (and
// their address immediates) this pass had to insert spliced in at the point
// they must execute.
func (r *RegisterAllocator) allocateGeneralRegisters(pTile, pCore int, ops []ir.OpID) ([]ir.OpID, error) {
	spillStart := r.spillAddressStart(pTile)
	state := newGeneralAllocState(common.RegisterFileSize, spillStart)

	for _, id := range ops {
		op := r.Model.Ops[id]
		for i := 0; i < op.NumOperands(); i++ {
			if !op.Operand(i).HasRegister() {
				state.remaining[op.Operands[i]]++
			}
		}
	}

	result := make([]ir.OpID, 0, len(ops))
	for _, id := range ops {
		op := r.Model.Ops[id]

		if err := r.ensureOperandsAvailable(op, state, pTile, pCore, &result); err != nil {
			return nil, err
		}

		for i := 0; i < op.NumOperands(); i++ {
			producer := op.Operands[i]
			if state.remaining[producer] > 0 {
				state.remaining[producer]--
			}
			if state.remaining[producer] == 0 {
				if addr, ok := state.liveNow[producer]; ok {
					state.release(addr, r.Model.Ops[producer].Length)
					delete(state.liveNow, producer)
				}
				if original, ok := state.reloadOf[producer]; ok {
					delete(state.activeReload, original)
				}
			}
		}

		if op.IsProducer() && !op.HasRegister() && state.remaining[op.ID] > 0 {
			addr, err := r.allocateWithSpilling(op, state, pTile, pCore, &result)
			if err != nil {
				return nil, err
			}
			op.SetRegister(addr)
			state.liveNow[op.ID] = addr
		}

		result = append(result, id)
	}
	return result, nil
}

// synthesizeAddressImmediate materializes a tile-memory address into a
// fresh general register for a Load or Store this pass invents mid-
// allocation. Ordinary address immediates (the ones the Memory Allocator
// attaches during legalization) are already core ops the Linearizer placed,
// so they get a register from the producer branch above like anything else;
// these are born after that pass ran and need one assigned by hand. The
// register is released again as soon as the caller finishes wiring it and
// allocating its consumer's own register, since its only use is the very
// next instruction.
func (r *RegisterAllocator) synthesizeAddressImmediate(address float64, pTile, pCore int, state *generalAllocState) (*ir.Operation, error) {
	imm := r.Model.NewSetImmediate(address)
	imm.SetPTile(pTile)
	imm.SetPCore(pCore)
	regAddr, ok := state.allocate(imm.Length)
	if !ok {
		return nil, errors.Errorf("regalloc: no space to materialize address immediate for %s", imm)
	}
	imm.SetRegister(common.RegisterFileStartAddress + regAddr)
	return imm, nil
}

// ensureOperandsAvailable synthesizes a reload for any operand that has
// been spilled and has no currently-live reload, rewiring op to read it.
func (r *RegisterAllocator) ensureOperandsAvailable(op *ir.Operation, state *generalAllocState, pTile, pCore int, result *[]ir.OpID) error {
	for i := 0; i < op.NumOperands(); i++ {
		producer := op.Operand(i)
		// A reserved-register producer never enters liveNow/spillStore below,
		// so it falls through to the wasSpilled check and is left alone; only
		// producers this pass itself tracks reach the reload logic. Checking
		// producer.HasRegister() here instead would misfire, since it stays
		// true forever once a general producer gets its first register, long
		// after that register has been spilled away and reused.
		if _, live := state.liveNow[producer.ID]; live {
			continue
		}
		storeID, wasSpilled := state.spillStore[producer.ID]
		if !wasSpilled {
			continue // reserved register, or not yet produced/allocated
		}
		if reloadID, ok := state.activeReload[producer.ID]; ok {
			r.Model.ReplaceOperand(op, producer, r.Model.Ops[reloadID])
			continue
		}

		store := r.Model.Ops[storeID]
		addrImm, err := r.synthesizeAddressImmediate(float64(store.TileMemoryAddress), pTile, pCore, state)
		if err != nil {
			return err
		}

		loadOp := r.Model.NewLoad(store)
		loadOp.SetPTile(pTile)
		loadOp.SetPCore(pCore)
		r.Model.AddOperand(loadOp, addrImm)
		r.Model.ReplaceOperand(op, producer, loadOp)

		regAddr, ok := state.allocate(producer.Length)
		if !ok {
			return errors.Errorf("regalloc: no space to reload spilled value for %s", producer)
		}
		addr := common.RegisterFileStartAddress + regAddr
		loadOp.SetRegister(addr)
		state.release(addrImm.Register, addrImm.Length)
		state.liveNow[loadOp.ID] = addr
		state.remaining[loadOp.ID] = 1
		state.reloadOf[loadOp.ID] = producer.ID
		state.activeReload[producer.ID] = loadOp.ID
		r.Report.LoadBytesReloaded += producer.Length

		*result = append(*result, addrImm.ID, loadOp.ID)
	}
	return nil
}

// allocateWithSpilling tries a direct allocation, then frees dead reloads,
// then spills live producers one at a time (skipping ones the current op
// still needs) until either the allocation succeeds or nothing is left to
// spill, per SPEC_FULL's Pass 3 procedure.
func (r *RegisterAllocator) allocateWithSpilling(op *ir.Operation, state *generalAllocState, pTile, pCore int, result *[]ir.OpID) (int, error) {
	if addr, ok := state.allocate(op.Length); ok {
		return common.RegisterFileStartAddress + addr, nil
	}

	for original, reloadID := range state.activeReload {
		reload := r.Model.Ops[reloadID]
		if !killCandidateGuard(op, r.Model.Ops[original], reload) {
			continue
		}
		state.release(state.liveNow[reloadID], reload.Length)
		delete(state.liveNow, reloadID)
		delete(state.activeReload, original)
		delete(state.reloadOf, reloadID)
		if addr, ok := state.allocate(op.Length); ok {
			return common.RegisterFileStartAddress + addr, nil
		}
	}

	for {
		candidate, addr, found := pickSpillCandidate(op, state)
		if !found {
			return 0, errors.Errorf("regalloc: register file exhausted and no spill candidate available for %s", op)
		}
		producer := r.Model.Ops[candidate]
		spillAddr := state.allocSpillAddress(producer.Length)
		store := r.Model.NewStore(producer)
		store.SetPTile(pTile)
		store.SetPCore(pCore)
		store.SetTileMemoryAddress(spillAddr)

		addrImm, err := r.synthesizeAddressImmediate(float64(spillAddr), pTile, pCore, state)
		if err != nil {
			return 0, err
		}
		r.Model.AddOperand(store, addrImm)
		state.release(addrImm.Register, addrImm.Length)

		state.release(addr, producer.Length)
		delete(state.liveNow, candidate)
		state.spillStore[candidate] = store.ID
		r.Report.StoreBytesSpilled += producer.Length
		r.Report.NumSpilled++

		*result = append(*result, addrImm.ID, store.ID)

		if a, ok := state.allocate(op.Length); ok {
			return common.RegisterFileStartAddress + a, nil
		}
	}
}

// pickSpillCandidate returns a currently-live general-register producer the
// current op does not itself use, preferring the one with the most
// remaining uses left (least urgently needed again).
func pickSpillCandidate(op *ir.Operation, state *generalAllocState) (ir.OpID, int, bool) {
	best := ir.OpID(-1)
	bestAddr := 0
	bestRemaining := -1
	for id, addr := range state.liveNow {
		if _, isReload := state.reloadOf[id]; isReload {
			continue
		}
		if op.ID == id {
			continue
		}
		if op.Uses(op.Model.Ops[id]) {
			continue
		}
		if state.remaining[id] > bestRemaining {
			best, bestAddr, bestRemaining = id, addr, state.remaining[id]
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, bestAddr, true
}
