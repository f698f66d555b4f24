package x86gen

import (
	"strings"
	"testing"

	"github.com/benjilks-fork/funcc/internal/ir"
	"github.com/benjilks-fork/funcc/internal/irgen"
)

// TestAllocateFreeBalance walks a synthetic instruction stream and checks
// invariant 1 from spec.md §8: every FreeReg is preceded by exactly one
// matching AllocateReg, and the backend's own bookkeeping (regs/virtToReg)
// ends up empty once every allocation has been freed.
func TestAllocateFreeBalance(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}

	b.allocateReg(0, 4)
	b.allocateReg(1, 4)
	if err := b.freeReg(0); err != nil {
		t.Fatalf("freeReg(0): %v", err)
	}
	if err := b.freeReg(1); err != nil {
		t.Fatalf("freeReg(1): %v", err)
	}

	if len(b.virtToReg) != 0 {
		t.Fatalf("expected no registers still tracked as live, got %d", len(b.virtToReg))
	}
	for i, occupied := range b.regs {
		if occupied {
			t.Fatalf("register slot %d still marked occupied after freeing everything", i)
		}
	}
}

func TestFreeUnallocatedRegisterErrors(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	if err := b.freeReg(42); err == nil {
		t.Fatalf("expected an error freeing a register that was never allocated")
	}
}

// TestSpillReleaseMustBeLIFO covers invariant 2: spilled registers (size>4,
// or the fifth live register once all four physical registers are taken)
// must be released in exactly the reverse order they were allocated.
func TestSpillReleaseMustBeLIFO(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}

	// Occupy all four physical registers, forcing the next two allocations
	// onto the spill stack.
	b.allocateReg(0, 4)
	b.allocateReg(1, 4)
	b.allocateReg(2, 4)
	b.allocateReg(3, 4)
	b.allocateReg(4, 4) // spilled
	b.allocateReg(5, 4) // spilled

	if err := b.freeReg(4); err == nil {
		t.Fatalf("releasing the bottom spill slot before the top one should fail LIFO order")
	}

	if err := b.freeReg(5); err != nil {
		t.Fatalf("freeReg(5) (top of spill stack): %v", err)
	}
	if err := b.freeReg(4); err != nil {
		t.Fatalf("freeReg(4) after its nested spill was released: %v", err)
	}
	for _, r := range []ir.Register{0, 1, 2, 3} {
		if err := b.freeReg(r); err != nil {
			t.Fatalf("freeReg(%d): %v", r, err)
		}
	}
}

// TestSpillEmitsBalancedEspAdjustment checks that every sub esp the spill
// path emits has a matching add esp of the same size once released.
func TestSpillEmitsBalancedEspAdjustment(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	b.allocateReg(0, 4)
	b.allocateReg(1, 4)
	b.allocateReg(2, 4)
	b.allocateReg(3, 4)
	b.allocateReg(4, 8) // spilled, 8 bytes
	if err := b.freeReg(4); err != nil {
		t.Fatalf("freeReg: %v", err)
	}
	if b.espDepth != 0 {
		t.Fatalf("espDepth should return to 0 after the spill is released, got %d", b.espDepth)
	}

	out := b.out.String()
	if strings.Count(out, "sub esp, 8") != 1 {
		t.Fatalf("expected exactly one \"sub esp, 8\", got:\n%s", out)
	}
	if strings.Count(out, "add esp, 8") != 1 {
		t.Fatalf("expected exactly one \"add esp, 8\", got:\n%s", out)
	}
}

// TestAcquireScratchAvoidsBorrowedRegister is the regression test for the
// nested-scratch collision: acquiring a second scratch while the first is
// still held must never hand back the same register.
func TestAcquireScratchAvoidsBorrowedRegister(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	outer, releaseOuter := b.acquireScratch()
	defer releaseOuter()

	inner, releaseInner := b.acquireScratch()
	defer releaseInner()

	if outer == inner {
		t.Fatalf("nested acquireScratch calls returned the same register %q", outer)
	}
}

// TestAcquireScratchFallsBackToEaxWhenAllOccupied exercises the push/pop-eax
// fallback and checks espDepth is adjusted and restored around it.
func TestAcquireScratchFallsBackToEaxWhenAllOccupied(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	b.allocateReg(0, 4)
	b.allocateReg(1, 4)
	b.allocateReg(2, 4)
	b.allocateReg(3, 4)

	name, release := b.acquireScratch()
	if name != "eax" {
		t.Fatalf("expected fallback scratch to be eax, got %q", name)
	}
	if b.espDepth != 4 {
		t.Fatalf("espDepth should be bumped by 4 during the eax fallback, got %d", b.espDepth)
	}
	release()
	if b.espDepth != 0 {
		t.Fatalf("espDepth should be restored after releasing the eax fallback, got %d", b.espDepth)
	}
	if !strings.Contains(b.out.String(), "push eax") || !strings.Contains(b.out.String(), "pop eax") {
		t.Fatalf("expected a push eax / pop eax pair, got:\n%s", b.out.String())
	}
}

// TestEmitCallSkipsSaveForItsOwnDestination is the regression test for the
// return-value-clobber bug: when the call's own result lands in eax, eax
// must not be saved and restored around the call, or the garbage restored
// from the save overwrites the result.
func TestEmitCallSkipsSaveForItsOwnDestination(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	b.allocateReg(0, 4) // the call's own destination, allocated before the Call instruction

	b.emitCall(ir.Inst{Kind: ir.Call, Name: "f", Dst: ir.Reg(0), Size: 4})
	out := b.out.String()
	if strings.Contains(out, "push eax") || strings.Contains(out, "pop eax") {
		t.Fatalf("expected no save/restore of eax for a call whose own result lands there, got:\n%s", out)
	}
}

// TestEmitCallSavesEaxWhenGenuinelyLive covers the opposite case: a value
// already live in eax before the call (not this call's own destination)
// must still be saved and restored.
func TestEmitCallSavesEaxWhenGenuinelyLive(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	b.allocateReg(0, 4) // a live value unrelated to this call occupies eax
	b.allocateReg(1, 4) // the call's destination lands in ebx instead

	b.emitCall(ir.Inst{Kind: ir.Call, Name: "f", Dst: ir.Reg(1), Size: 4})
	out := b.out.String()
	if !strings.Contains(out, "push eax") || !strings.Contains(out, "pop eax") {
		t.Fatalf("expected eax to be saved and restored around the call, got:\n%s", out)
	}
}

// TestEmitCallSavesEaxForNullReturn covers a call with no return value at
// all: inst.Dst is meaningless and may be its zero value (register 0), so
// a pre-existing live register 0 must not be mistaken for the call's own
// destination.
func TestEmitCallSavesEaxForNullReturn(t *testing.T) {
	b := &backend{virtToReg: map[ir.Register]physLoc{}}
	b.allocateReg(0, 4) // a live value occupies eax; this call returns nothing

	b.emitCall(ir.Inst{Kind: ir.Call, Name: "f", Size: 0})
	out := b.out.String()
	if !strings.Contains(out, "push eax") || !strings.Contains(out, "pop eax") {
		t.Fatalf("expected eax to be saved and restored around a null-return call, got:\n%s", out)
	}
}

// TestGenerateZeroArgZeroLocalReturn0 is the boundary scenario from
// spec.md §8: a zero-arg, zero-local, "return 0" function compiles to a
// bare prologue, "mov eax, 0", and epilogue.
func TestGenerateZeroArgZeroLocalReturn0(t *testing.T) {
	gen := irgen.New()
	gen.StartFunction("main", nil)
	gen.Return(gen.EmitInt(0), 4)
	prog := gen.Finish()

	var out strings.Builder
	if err := Generate(&out, prog); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	asm := out.String()

	if !strings.Contains(asm, "push ebp") || !strings.Contains(asm, "mov ebp, esp") {
		t.Fatalf("missing standard prologue:\n%s", asm)
	}
	if !strings.Contains(asm, "mov eax, 0") {
		t.Fatalf("expected the zero return value to be moved into eax:\n%s", asm)
	}
	if !strings.Contains(asm, "pop ebp") || !strings.Contains(asm, "ret") {
		t.Fatalf("missing standard epilogue:\n%s", asm)
	}
	if strings.Contains(asm, "sub esp,") {
		t.Fatalf("a zero-local function should not adjust esp for a frame:\n%s", asm)
	}
}
