// Package codegen renders a linearized, register-allocated Model into the
// per-tile and per-core text instruction streams the accelerator's assembler
// consumes, plus per-MVMU weight files. Grounded on
// original_source/src/codegen.cpp for exact mnemonic formats.
package codegen

import (
	"fmt"
	"strings"

	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// CodeGenerator renders one Model's linearized op lists into text.
type CodeGenerator struct {
	Model    *ir.Model
	CoreOps  map[[2]int][]ir.OpID
	TileOps  map[int][]ir.OpID
	NumTiles int
}

func New(model *ir.Model, coreOps map[[2]int][]ir.OpID, tileOps map[int][]ir.OpID, numTiles int) *CodeGenerator {
	return &CodeGenerator{Model: model, CoreOps: coreOps, TileOps: tileOps, NumTiles: numTiles}
}

// TileStream renders pTile's per-tile instruction stream: only
// TileOperations (Send/Receive emit real mnemonics, WriteInput/ReadOutput
// emit nothing), terminated by halt().
func (g *CodeGenerator) TileStream(pTile int) string {
	var b strings.Builder
	for _, id := range g.TileOps[pTile] {
		op := g.Model.Ops[id]
		b.WriteString(g.renderTileOp(op))
	}
	b.WriteString("halt()\n")
	return b.String()
}

// CoreStream renders (pTile, pCore)'s per-core instruction stream,
// terminated by hlt().
func (g *CodeGenerator) CoreStream(pTile, pCore int) string {
	var b strings.Builder
	for _, id := range g.CoreOps[[2]int{pTile, pCore}] {
		op := g.Model.Ops[id]
		if s := g.renderCoreOp(op); s != "" {
			b.WriteString(s)
		}
	}
	b.WriteString("hlt()\n")
	return b.String()
}

func (g *CodeGenerator) renderTileOp(op *ir.Operation) string {
	switch op.Kind {
	case ir.KindSend:
		w := widthFactor(op.Length, common.MaxSendRecvWidth)
		dst := 0
		// target_addr is the destination Receive's physical tile; a Send's
		// own Readers() resolves straight to its paired Receive (recorded by
		// NewReceive), so no scan of the underlying write's readers is needed.
		for _, reader := range op.Readers() {
			if reader.Kind == ir.KindReceive && reader.HasPTile() {
				dst = reader.PTile
				break
			}
		}
		return fmt.Sprintf("send(mem_addr=%d, vtile_id=%d, send_width=%d, target_addr=%d, vec=%d)\n",
			op.Src(0).TileMemoryAddress, op.PTile, w, dst, op.Length/w)
	case ir.KindReceive:
		w := widthFactor(op.Length, common.MaxSendRecvWidth)
		src := 0
		if send := op.Src(0); send != nil && send.HasPTile() {
			src = send.PTile
		}
		return fmt.Sprintf("receive(mem_addr=%d, vtile_id=%d, receive_width=%d, counter=%d, vec=%d)\n",
			op.TileMemoryAddress, src, w, len(op.Readers()), op.Length/w)
	case ir.KindWriteInput, ir.KindReadOutput:
		return ""
	default:
		return ""
	}
}

func (g *CodeGenerator) renderCoreOp(op *ir.Operation) string {
	if set := coalescedSet(op); set != nil {
		if set.Leader() != op.ID {
			return ""
		}
		if set.Training {
			return renderTraining(g.Model, set)
		}
		return renderMVM(g.Model, set)
	}

	switch op.Kind {
	case ir.KindMVM:
		return renderUncoalescedMVM(op)
	case ir.KindTrainingMatrix:
		return renderUncoalescedTraining(op)
	case ir.KindALU:
		return renderALU(op)
	case ir.KindSetImmediate:
		return fmt.Sprintf("set(d1=%d, imm=%g, vec=%d)\n", op.Register, op.Immediate, op.Length)
	case ir.KindCopy:
		return fmt.Sprintf("copy(d1=%d, r1=%d, vec=%d, src_type=1)\n", op.Register, op.Operand(0).Register, op.Length)
	case ir.KindLoad:
		w := widthFactor(op.Length, common.MaxLoadStoreWidth)
		return fmt.Sprintf("load(d1=%d, r1=%d, load_width=%d, vec=%d)\n", op.Register, op.Operand(0).Register, w, op.Length/w)
	case ir.KindStore:
		w := widthFactor(op.Length, common.MaxLoadStoreWidth)
		return fmt.Sprintf("store(d1=%d, r1=%d, counter=%d, store_width=%d, vec=%d)\n",
			op.Operand(1).Register, op.Operand(0).Register, len(op.Readers()), w, op.Length/w)
	default:
		return ""
	}
}

// widthFactor finds the largest factor of length no greater than max, by
// linear downward search, per original_source/src/codegen.cpp.
func widthFactor(length, max int) int {
	if length <= 0 {
		return 1
	}
	for w := max; w >= 1; w-- {
		if length%w == 0 {
			return w
		}
	}
	return 1
}
