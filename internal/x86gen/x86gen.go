// Package x86gen lowers a fully built ir.Program into textual 32-bit x86
// assembly: physical register allocation with stack spill, stack-frame
// layout, and emission of moves, arithmetic, comparisons, calls, jumps,
// and a pooled string section. Because the IR is generated in full before
// this package ever runs, every function's frame size is already known —
// unlike the single-pass reference implementation, there is no need to
// buffer a function's body to patch the prologue's `sub esp` in after the
// fact; see DESIGN.md.
package x86gen

import (
	"bytes"
	"fmt"
	"io"

	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/ir"
)

var registerLetters = [4]byte{'a', 'b', 'c', 'd'}

type physLoc struct {
	isSpill      bool
	letter       byte
	size         int
	depthAtAlloc int
}

// backend holds the mutable state of emitting one ir.Program. Register
// allocation, the spill stack, and the esp-depth counter are all reset at
// the start of every function.
type backend struct {
	out bytes.Buffer

	regs      [4]bool // indexed by position in registerLetters: bound to a live virtual register
	borrowed  [4]bool // indexed the same way: currently lent out as a scratch
	virtToReg map[ir.Register]physLoc
	spillTop  []ir.Register
	espDepth  int

	stringPool  map[string]int
	stringOrder []string
}

// Generate emits prog as NASM-flavored 32-bit x86 assembly to w.
func Generate(w io.Writer, prog ir.Program) error {
	b := &backend{stringPool: map[string]int{}}

	b.out.WriteString("global main\n")
	b.out.WriteString("section .text\n")
	for _, fn := range prog.Functions {
		if err := b.emitFunction(fn); err != nil {
			return err
		}
	}

	b.out.WriteString("section .data\n")
	for id, s := range b.stringOrder {
		fmt.Fprintf(&b.out, "str%d: db %s, 0\n", id, quoteLiteral(s))
	}

	for _, name := range prog.Externs {
		fmt.Fprintf(&b.out, "extern %s\n", name)
	}

	_, err := w.Write(b.out.Bytes())
	return err
}

// quoteLiteral wraps s in double quotes verbatim; per spec.md §4.5 the
// backend does not escape embedded quotes, newlines, or backslashes.
func quoteLiteral(s string) string { return "\"" + s + "\"" }

func (b *backend) emitFunction(fn ir.Function) error {
	b.virtToReg = map[ir.Register]physLoc{}
	b.spillTop = nil
	b.espDepth = 0
	b.regs = [4]bool{}
	b.borrowed = [4]bool{}

	fmt.Fprintf(&b.out, "%s:\n", fn.Name)
	b.out.WriteString("\tpush ebp\n")
	b.out.WriteString("\tmov ebp, esp\n")
	if fn.StackFrameSize > 0 {
		fmt.Fprintf(&b.out, "\tsub esp, %d\n", fn.StackFrameSize)
	}

	for _, inst := range fn.Code {
		if err := b.emitInst(inst); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func (b *backend) emitInst(inst ir.Inst) error {
	switch inst.Kind {
	case ir.AllocateReg:
		b.allocateReg(inst.Dst.Reg, inst.Size)
		return nil
	case ir.FreeReg:
		return b.freeReg(inst.Dst.Reg)
	case ir.SetI32:
		b.emitf("\tmov %s, %d\n", b.operand(inst.Dst, 4), inst.Imm32)
		return nil
	case ir.SetI8:
		b.emitf("\tmov %s, %d\n", b.operand(inst.Dst, 1), inst.Imm8)
		return nil
	case ir.SetString:
		id := b.internString(inst.Str)
		b.emitf("\tmov %s, str%d\n", b.operand(inst.Dst, 4), id)
		return nil
	case ir.SetRef:
		b.emitf("\tlea %s, %s\n", b.operand(inst.Dst, 4), b.addressOperand(inst.Lhs, 0))
		return nil
	case ir.Deref:
		b.emitDeref(inst.Dst, inst.Lhs, inst.Size)
		return nil
	case ir.Move:
		b.emitMove(inst.Dst, inst.Lhs, inst.Size)
		return nil
	case ir.MoveToOffset:
		b.emitMoveToOffset(inst.Dst, int(inst.Imm32), inst.Lhs, inst.Size)
		return nil
	case ir.PushI32:
		b.push4("\tpush %d\n", inst.Imm32)
		return nil
	case ir.PushI8:
		b.pushByteImm(inst.Imm8)
		return nil
	case ir.PushString:
		id := b.internString(inst.Str)
		b.push4("\tpush str%d\n", int32(id))
		return nil
	case ir.Push:
		b.emitPush(inst.Lhs, inst.Size)
		return nil
	case ir.Pop:
		if inst.Count > 0 {
			b.emitf("\tadd esp, %d\n", inst.Count)
			b.espDepth -= inst.Count
		}
		return nil
	case ir.OpConst:
		b.emitOpConst(inst)
		return nil
	case ir.OpInst:
		b.emitOpInst(inst)
		return nil
	case ir.Call:
		b.emitCall(inst)
		return nil
	case ir.Label:
		fmt.Fprintf(&b.out, "%s:\n", inst.Name)
		return nil
	case ir.Goto:
		b.emitf("\tjmp %s\n", inst.Name)
		return nil
	case ir.GotoIfNot:
		b.emitf("\tcmp %s, 0\n", b.operand(inst.Lhs, 1))
		b.emitf("\tjz %s\n", inst.Name)
		return nil
	case ir.Return:
		b.emitReturn(inst)
		return nil
	case ir.StoreThroughPointer:
		b.emitStoreThroughPointer(inst.Dst, inst.Lhs, inst.Size)
		return nil
	default:
		return cerr.NewCompileErrorNoPosition("x86gen: unhandled instruction kind")
	}
}

func (b *backend) emitf(format string, args ...any) { fmt.Fprintf(&b.out, format, args...) }

func sizePrefix(size int) string {
	switch size {
	case 1:
		return "byte "
	case 4:
		return "dword "
	default:
		return ""
	}
}

func regName(pos int, size int) string {
	letter := string(registerLetters[pos])
	if size <= 1 {
		return letter + "l"
	}
	return "e" + letter + "x"
}

// operand formats a Storage as something usable on either side of a mov.
func (b *backend) operand(s ir.Storage, size int) string {
	switch s.Kind {
	case ir.StorageParam:
		return fmt.Sprintf("%s[ebp+%d]", sizePrefix(size), s.Offset+8)
	case ir.StorageLocal:
		return fmt.Sprintf("%s[ebp-%d]", sizePrefix(size), s.Offset)
	case ir.StorageRegister:
		loc, ok := b.virtToReg[s.Reg]
		if !ok {
			return "?"
		}
		if !loc.isSpill {
			return regName(letterPos(loc.letter), size)
		}
		offset := b.espDepth - loc.depthAtAlloc
		if offset == 0 {
			return fmt.Sprintf("%s[esp]", sizePrefix(size))
		}
		return fmt.Sprintf("%s[esp+%d]", sizePrefix(size), offset)
	default:
		return "?"
	}
}

// addressOperand formats "the address of s, plus offset" for lea/access
// use. Register storage is assumed to already be a stack location (spill)
// or physical register holding its own address — SetRef only ever
// targets Param/Local/spilled-Register sources in practice.
func (b *backend) addressOperand(s ir.Storage, offset int) string {
	switch s.Kind {
	case ir.StorageParam:
		return fmt.Sprintf("[ebp+%d]", s.Offset+8+offset)
	case ir.StorageLocal:
		return fmt.Sprintf("[ebp-%d]", s.Offset-offset)
	default:
		return b.operand(s, 4)
	}
}

func letterPos(letter byte) int {
	for i, l := range registerLetters {
		if l == letter {
			return i
		}
	}
	return 0
}

func (b *backend) allocateReg(r ir.Register, size int) {
	if size <= 4 {
		for i, occupied := range b.regs {
			if !occupied {
				b.regs[i] = true
				b.virtToReg[r] = physLoc{letter: registerLetters[i], size: size}
				return
			}
		}
	}
	b.espDepth += size
	b.emitf("\tsub esp, %d\n", size)
	b.virtToReg[r] = physLoc{isSpill: true, size: size, depthAtAlloc: b.espDepth}
	b.spillTop = append(b.spillTop, r)
}

func (b *backend) freeReg(r ir.Register) error {
	loc, ok := b.virtToReg[r]
	if !ok {
		return cerr.NewCompileErrorNoPosition("x86gen: free of an unallocated register")
	}
	if !loc.isSpill {
		delete(b.virtToReg, r)
		b.regs[letterPos(loc.letter)] = false
		return nil
	}
	n := len(b.spillTop)
	if n == 0 || b.spillTop[n-1] != r {
		return cerr.NewCompileErrorNoPosition("x86gen: stack spill released out of LIFO order")
	}
	delete(b.virtToReg, r)
	b.spillTop = b.spillTop[:n-1]
	b.emitf("\tadd esp, %d\n", loc.size)
	b.espDepth -= loc.size
	return nil
}

func (b *backend) internString(s string) int {
	if id, ok := b.stringPool[s]; ok {
		return id
	}
	id := len(b.stringOrder)
	b.stringPool[s] = id
	b.stringOrder = append(b.stringOrder, s)
	return id
}

// acquireScratch returns the name of a spare dword register plus a release
// closure, for code that needs a temporary register of its own. It prefers
// a register that is neither bound to a live virtual register nor already
// lent out as someone else's scratch, so a scratch acquired by an outer
// caller stays safe across a nested acquireScratch call (emitDeref's
// large-struct path holds the source pointer in one scratch register while
// copyLoop acquires a second, distinct one for the copy itself). Only when
// every register is occupied does it fall back to saving and restoring
// eax around the caller's use; that push/pop pair temporarily shifts esp,
// so espDepth is adjusted for its duration to keep spill-offset arithmetic
// correct.
func (b *backend) acquireScratch() (string, func()) {
	for i := range registerLetters {
		if !b.regs[i] && !b.borrowed[i] {
			b.borrowed[i] = true
			return regName(i, 4), func() { b.borrowed[i] = false }
		}
	}
	b.out.WriteString("\tpush eax\n")
	b.espDepth += 4
	return "eax", func() {
		b.out.WriteString("\tpop eax\n")
		b.espDepth -= 4
	}
}

func (b *backend) emitMove(dst, src ir.Storage, size int) {
	if size <= 4 {
		b.movScalar(b.operand(dst, size), b.operand(src, size), size)
		return
	}
	b.copyLoop(b.addressOperand(dst, 0), b.addressOperand(src, 0), size)
}

func (b *backend) emitMoveToOffset(dst ir.Storage, offset int, src ir.Storage, size int) {
	dstAddr := b.addressOperand(dst, offset)
	if size <= 4 {
		b.movScalar(withPrefix(dstAddr, size), b.operand(src, size), size)
		return
	}
	b.copyLoop(dstAddr, b.addressOperand(src, 0), size)
}

func withPrefix(addr string, size int) string {
	if len(addr) > 0 && addr[0] == '[' {
		return sizePrefix(size) + addr
	}
	return addr
}

// movScalar emits a plain mov, introducing a scratch register when both
// sides are memory operands (a direct mem-to-mem mov is not a valid x86
// encoding).
func (b *backend) movScalar(dst, src string, size int) {
	if dst == src {
		return
	}
	if isMemOperand(dst) && isMemOperand(src) {
		scratch, release := b.acquireScratch()
		defer release()
		sized := scratch
		if size <= 1 {
			sized = scratch[1:2] + "l"
		}
		b.emitf("\tmov %s, %s\n", sized, src)
		b.emitf("\tmov %s, %s\n", dst, sized)
		return
	}
	b.emitf("\tmov %s, %s\n", dst, src)
}

func isMemOperand(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '[' {
			return true
		}
	}
	return false
}

// copyLoop moves size bytes from src to dst, dword at a time with a
// trailing byte tail, through a scratch register.
func (b *backend) copyLoop(dstAddr, srcAddr string, size int) {
	scratch, release := b.acquireScratch()
	defer release()
	off := 0
	for ; size-off >= 4; off += 4 {
		b.emitf("\tmov %s, %s\n", scratch, memAt(srcAddr, off, 4))
		b.emitf("\tmov %s, %s\n", memAt(dstAddr, off, 4), scratch)
	}
	for ; off < size; off++ {
		byteScratch := scratch[1:2] + "l"
		b.emitf("\tmov %s, %s\n", byteScratch, memAt(srcAddr, off, 1))
		b.emitf("\tmov %s, %s\n", memAt(dstAddr, off, 1), byteScratch)
	}
}

// memAt rewrites a "[base+k]"/"[base-k]" address string to add off more
// bytes to its displacement, tagging it with size's nasm size keyword.
func memAt(addr string, off, size int) string {
	inner := addr[1 : len(addr)-1]
	return fmt.Sprintf("%s[%s+%d]", sizePrefix(size), inner, off)
}

// emitDeref holds the source pointer in its own scratch register for the
// duration of the copy: for size > 4 that register stays borrowed while
// copyLoop runs, so copyLoop's own scratch acquisition is forced onto a
// different register instead of silently aliasing the pointer.
func (b *backend) emitDeref(dst, ptr ir.Storage, size int) {
	scratch, release := b.acquireScratch()
	defer release()
	b.emitf("\tmov %s, %s\n", scratch, b.operand(ptr, 4))
	if size <= 4 {
		sized := scratch
		if size <= 1 {
			sized = scratch[1:2] + "l"
		}
		b.emitf("\tmov %s, [%s]\n", sized, scratch)
		b.emitf("\tmov %s, %s\n", b.operand(dst, size), sized)
		return
	}
	ptrMem := fmt.Sprintf("[%s]", scratch)
	b.copyLoop(b.addressOperand(dst, 0), ptrMem, size)
}

// emitStoreThroughPointer writes size bytes from src into the address
// held by the pointer in dst, the inverse of emitDeref's load: dst's own
// storage holds an address, not the destination bytes themselves.
func (b *backend) emitStoreThroughPointer(dst, src ir.Storage, size int) {
	scratch, release := b.acquireScratch()
	defer release()
	b.emitf("\tmov %s, %s\n", scratch, b.operand(dst, 4))
	ptrMem := fmt.Sprintf("[%s]", scratch)

	if size > 4 {
		b.copyLoop(ptrMem, b.addressOperand(src, 0), size)
		return
	}

	srcOperand := b.operand(src, size)
	if isMemOperand(srcOperand) {
		valScratch, releaseVal := b.acquireScratch()
		defer releaseVal()
		sized := valScratch
		if size <= 1 {
			sized = valScratch[1:2] + "l"
		}
		b.emitf("\tmov %s, %s\n", sized, srcOperand)
		b.emitf("\tmov %s, %s\n", withPrefix(ptrMem, size), sized)
		return
	}
	b.emitf("\tmov %s, %s\n", withPrefix(ptrMem, size), srcOperand)
}

func arithMnemonic(k ir.OpKind) string {
	switch k {
	case ir.OpAdd:
		return "add"
	case ir.OpSubtract:
		return "sub"
	case ir.OpMultiply:
		return "imul"
	default:
		return "?"
	}
}

func setMnemonic(k ir.OpKind) string {
	switch k {
	case ir.OpGreaterThan:
		return "setg"
	case ir.OpLessThan:
		return "setl"
	default:
		return "?"
	}
}

func isComparison(k ir.OpKind) bool { return k == ir.OpGreaterThan || k == ir.OpLessThan }

func (b *backend) emitOpConst(inst ir.Inst) {
	if isComparison(inst.Op) {
		b.emitf("\tcmp %s, %d\n", b.operand(inst.Lhs, 4), inst.Imm32)
		b.emitf("\t%s %s\n", setMnemonic(inst.Op), b.operand(inst.Dst, 1))
		return
	}
	b.movScalar(b.operand(inst.Dst, 4), b.operand(inst.Lhs, 4), 4)
	b.emitf("\t%s %s, %d\n", arithMnemonic(inst.Op), b.operand(inst.Dst, 4), inst.Imm32)
}

func (b *backend) emitOpInst(inst ir.Inst) {
	if isComparison(inst.Op) {
		scratch, release := b.acquireScratch()
		defer release()
		b.emitf("\tmov %s, %s\n", scratch, b.operand(inst.Lhs, 4))
		b.emitf("\tcmp %s, %s\n", scratch, b.operand(inst.Rhs, 4))
		b.emitf("\t%s %s\n", setMnemonic(inst.Op), b.operand(inst.Dst, 1))
		return
	}
	b.movScalar(b.operand(inst.Dst, 4), b.operand(inst.Lhs, 4), 4)
	b.emitf("\t%s %s, %s\n", arithMnemonic(inst.Op), b.operand(inst.Dst, 4), b.operand(inst.Rhs, 4))
}

func (b *backend) push4(format string, arg int32) {
	b.emitf(format, arg)
	b.espDepth += 4
}

func (b *backend) pushByteImm(v int8) {
	b.emitf("\tsub esp, 1\n")
	b.emitf("\tmov byte [esp], %d\n", v)
	b.espDepth += 1
}

func (b *backend) emitPush(s ir.Storage, size int) {
	switch size {
	case 4, 2:
		b.emitf("\tpush %s\n", b.operand(s, 4))
		b.espDepth += 4
	case 1:
		b.emitf("\tsub esp, 1\n")
		b.emitf("\tmov byte [esp], %s\n", b.operand(s, 1))
		b.espDepth += 1
	default:
		b.emitf("\tsub esp, %d\n", size)
		b.espDepth += size
		b.copyLoop("[esp+0]", b.addressOperand(s, 0), size)
	}
}

// eaxIsLiveAcrossCall reports whether eax is bound to a virtual register
// other than the call's own destination. dst is allocated before the Call
// instruction is emitted (see irgen.Call), so by the time emitCall runs
// regs[0] is often true precisely because eax already holds dst itself —
// that occupant doesn't need saving, since nothing has written to it yet.
// A call with no register destination (inst.Size outside 1..4, e.g. a null
// or big return) never matches its own Dst, since Dst is meaningless and
// may be its zero value in that case.
func (b *backend) eaxIsLiveAcrossCall(inst ir.Inst) bool {
	if !b.regs[0] {
		return false
	}
	hasRegisterDst := inst.Size > 0 && inst.Size <= 4 && inst.Dst.Kind == ir.StorageRegister
	for r, loc := range b.virtToReg {
		if !loc.isSpill && loc.letter == registerLetters[0] {
			return !hasRegisterDst || r != inst.Dst.Reg
		}
	}
	return true
}

// emitCall saves a live eax around the call (callees are free to clobber
// it) and, if the callee's result is needed, copies it out of eax before
// eax is restored — getting the result out first, then restoring, is
// what makes the save/restore safe.
func (b *backend) emitCall(inst ir.Inst) {
	live := b.eaxIsLiveAcrossCall(inst)
	if live {
		b.out.WriteString("\tpush eax\n")
		b.espDepth += 4
	}

	b.emitf("\tcall %s\n", inst.Name)

	if inst.Size > 0 && inst.Size <= 4 {
		dst := b.operand(inst.Dst, inst.Size)
		sized := "eax"
		if inst.Size <= 1 {
			sized = "al"
		}
		if dst != sized {
			b.emitf("\tmov %s, %s\n", dst, sized)
		}
	}

	if live {
		b.out.WriteString("\tpop eax\n")
		b.espDepth -= 4
	}
}

func (b *backend) emitReturn(inst ir.Inst) {
	switch {
	case inst.Size > 4:
		// inst.Lhs already holds the hidden return-area pointer, not the
		// value itself — load it into eax rather than taking its address.
		b.movScalar("eax", b.operand(inst.Lhs, 4), 4)
	case inst.Size > 0:
		b.movScalar("eax", b.operand(inst.Lhs, inst.Size), inst.Size)
	}
	b.out.WriteString("\tmov esp, ebp\n")
	b.out.WriteString("\tpop ebp\n")
	b.out.WriteString("\tret\n")
}
