// Package irgen lowers expressions and statements into the flat
// instruction stream defined by internal/ir. Every value-producing
// method returns a *Value handle; callers release it with Release once
// its source expression's lifetime ends. There is no garbage collector
// involved and no runtime.SetFinalizer — release is always an explicit
// call, driven by internal/compiler at statement and sub-expression
// boundaries, standing in for the reference-counted Drop the reference
// implementation relies on.
package irgen

import (
	"fmt"

	"github.com/benjilks-fork/funcc/internal/ir"
)

// LocationKind discriminates what a Value actually holds.
type LocationKind int

const (
	LocNull LocationKind = iota
	LocI32
	LocI8
	LocString
	LocStorage
)

// Location is the payload of a Value: either a compile-time constant not
// yet written anywhere, or a concrete ir.Storage that already holds a
// value (a virtual register, a parameter slot, or a local-frame slot).
type Location struct {
	Kind    LocationKind
	I32     int32
	I8      int8
	Str     string
	Storage ir.Storage
	Size    int // byte size, meaningful when Kind == LocStorage
}

// Value is a handle to something the generator has produced. Values that
// wrap a constant carry no backing resource; values that wrap a Storage
// own either a virtual register or a slice of the function's frame, and
// Release gives that resource back.
type Value struct {
	gen      *Generator
	Loc      Location
	released bool
}

// Location exposes the handle's payload to callers that need to inspect
// it directly (internal/compiler's type-driven lowering, mostly).
func (v *Value) Location() Location { return v.Loc }

// Release ends this handle's lifetime. Storage backed by a virtual
// register is returned to the free pool and a FreeRegister instruction is
// emitted; storage backed by a local frame slot is left alone, since
// locals live for the whole function. Release is safe to call more than
// once and safe to call on a nil handle.
func (v *Value) Release() {
	if v == nil || v.released {
		return
	}
	v.released = true
	if v.Loc.Kind != LocStorage || v.Loc.Storage.Kind != ir.StorageRegister {
		return
	}
	v.gen.freeRegister(v.Loc.Storage.Reg)
}

// Generator builds one ir.Program one function at a time.
type Generator struct {
	Program  ir.Program
	cur      *ir.Function
	nextReg  ir.Register
	freeRegs []ir.Register
	labelSeq int
}

// New returns a Generator ready to start its first function.
func New() *Generator { return &Generator{} }

func (g *Generator) emit(inst ir.Inst) {
	g.cur.Code = append(g.cur.Code, inst)
}

func (g *Generator) allocateRegister(size int) ir.Register {
	var r ir.Register
	if n := len(g.freeRegs); n > 0 {
		r = g.freeRegs[n-1]
		g.freeRegs = g.freeRegs[:n-1]
	} else {
		r = g.nextReg
		g.nextReg++
	}
	g.emit(ir.Inst{Kind: ir.AllocateReg, Dst: ir.Reg(r), Size: size})
	return r
}

func (g *Generator) freeRegister(r ir.Register) {
	g.emit(ir.Inst{Kind: ir.FreeReg, Dst: ir.Reg(r)})
	g.freeRegs = append(g.freeRegs, r)
}

// allocateLocal grows the current function's frame and returns a handle
// over the new slot. Used both for allocate(size>4) and directly by
// internal/compiler wherever a value must be addressable (Let bindings,
// struct/array literals, call return areas).
func (g *Generator) allocateLocal(size int) *Value {
	offset := g.cur.StackFrameSize + size
	g.cur.StackFrameSize = offset
	return &Value{gen: g, Loc: Location{Kind: LocStorage, Storage: ir.Local(offset), Size: size}}
}

// AllocateLocal is allocateLocal exported for statement-level callers.
func (g *Generator) AllocateLocal(size int) *Value { return g.allocateLocal(size) }

// allocate picks a virtual register for sizes that fit one machine word
// and a frame slot otherwise, mirroring the source's "sizes > 4 use
// stack-spill slots" rule for materializing transient values.
func (g *Generator) allocate(size int) *Value {
	if size <= 4 {
		r := g.allocateRegister(size)
		return &Value{gen: g, Loc: Location{Kind: LocStorage, Storage: ir.Reg(r), Size: size}}
	}
	return g.allocateLocal(size)
}

// EmitNull returns the handle for a statement-only, value-less result.
func (g *Generator) EmitNull() *Value { return &Value{gen: g, Loc: Location{Kind: LocNull}} }

// EmitInt returns an unmaterialized int32 constant.
func (g *Generator) EmitInt(v int32) *Value { return &Value{gen: g, Loc: Location{Kind: LocI32, I32: v}} }

// EmitChar returns an unmaterialized single-byte constant.
func (g *Generator) EmitChar(v int8) *Value { return &Value{gen: g, Loc: Location{Kind: LocI8, I8: v}} }

// EmitBool returns an unmaterialized boolean, represented as a byte.
func (g *Generator) EmitBool(b bool) *Value {
	var v int8
	if b {
		v = 1
	}
	return &Value{gen: g, Loc: Location{Kind: LocI8, I8: v}}
}

// EmitString returns an unmaterialized string constant; the backend pools
// its content at emission time.
func (g *Generator) EmitString(s string) *Value {
	return &Value{gen: g, Loc: Location{Kind: LocString, Str: s}}
}

// EnsureStorage materializes a constant into a concrete register or frame
// slot if it is not already one. Values already backed by Storage are
// returned unchanged.
func (g *Generator) EnsureStorage(v *Value) *Value {
	switch v.Loc.Kind {
	case LocStorage, LocNull:
		return v
	case LocI32:
		dst := g.allocate(4)
		g.emit(ir.Inst{Kind: ir.SetI32, Dst: dst.Loc.Storage, Imm32: v.Loc.I32})
		return dst
	case LocI8:
		dst := g.allocate(1)
		g.emit(ir.Inst{Kind: ir.SetI8, Dst: dst.Loc.Storage, Imm8: v.Loc.I8})
		return dst
	case LocString:
		dst := g.allocate(4)
		g.emit(ir.Inst{Kind: ir.SetString, Dst: dst.Loc.Storage, Str: v.Loc.Str})
		return dst
	default:
		return v
	}
}

// Move copies src into an already-allocated dst.
func (g *Generator) Move(dst, src *Value, size int) {
	s := g.EnsureStorage(src)
	g.emit(ir.Inst{Kind: ir.Move, Dst: dst.Loc.Storage, Lhs: s.Loc.Storage, Size: size})
	if s != src {
		s.Release()
	}
}

// MoveToOffset writes src into dst at a fixed byte offset, used for
// struct and array literal field/element initialization.
func (g *Generator) MoveToOffset(dst *Value, offset int, src *Value, size int) {
	s := g.EnsureStorage(src)
	g.emit(ir.Inst{Kind: ir.MoveToOffset, Dst: dst.Loc.Storage, Imm32: int32(offset), Lhs: s.Loc.Storage, Size: size})
	if s != src {
		s.Release()
	}
}

// binaryOp materializes lhs, folds in rhs as an immediate when possible,
// and allocates a dst of the given result size.
func (g *Generator) binaryOp(kind ir.OpKind, size int, lhs, rhs *Value) *Value {
	l := g.EnsureStorage(lhs)
	dst := g.allocate(size)
	if rhs.Loc.Kind == LocI32 {
		g.emit(ir.Inst{Kind: ir.OpConst, Op: kind, Dst: dst.Loc.Storage, Lhs: l.Loc.Storage, Imm32: rhs.Loc.I32})
	} else {
		r := g.EnsureStorage(rhs)
		g.emit(ir.Inst{Kind: ir.OpInst, Op: kind, Dst: dst.Loc.Storage, Lhs: l.Loc.Storage, Rhs: r.Loc.Storage})
		if r != rhs {
			r.Release()
		}
	}
	if l != lhs {
		l.Release()
	}
	return dst
}

// Arithmetic computes Add/Subtract/Multiply; the result is always 4 bytes.
func (g *Generator) Arithmetic(kind ir.OpKind, lhs, rhs *Value) *Value {
	return g.binaryOp(kind, 4, lhs, rhs)
}

// Comparison computes GreaterThan/LessThan; the result is always 1 byte.
func (g *Generator) Comparison(kind ir.OpKind, lhs, rhs *Value) *Value {
	return g.binaryOp(kind, 1, lhs, rhs)
}

// RefOf takes the address of a storage. Callers are responsible for only
// calling this on values known to be addressable lvalues (identifiers,
// field accesses, index expressions) — the generator itself has no way
// to know yet which virtual registers the backend will later spill.
func (g *Generator) RefOf(v *Value) *Value {
	s := g.EnsureStorage(v)
	dst := g.allocate(4)
	g.emit(ir.Inst{Kind: ir.SetRef, Dst: dst.Loc.Storage, Lhs: s.Loc.Storage})
	if s != v {
		s.Release()
	}
	return dst
}

// Deref loads size bytes through a pointer.
func (g *Generator) Deref(ptr *Value, size int) *Value {
	p := g.EnsureStorage(ptr)
	dst := g.allocate(size)
	g.emit(ir.Inst{Kind: ir.Deref, Dst: dst.Loc.Storage, Lhs: p.Loc.Storage, Size: size})
	p.Release()
	return dst
}

// StoreThroughPointer writes size bytes of src into the address held by
// ptr — the inverse of Deref, used by a big-return function to fill the
// caller's return area through its hidden pointer parameter instead of
// overwriting the parameter slot itself.
func (g *Generator) StoreThroughPointer(ptr, src *Value, size int) {
	p := g.EnsureStorage(ptr)
	s := g.EnsureStorage(src)
	g.emit(ir.Inst{Kind: ir.StoreThroughPointer, Dst: p.Loc.Storage, Lhs: s.Loc.Storage, Size: size})
	if p != ptr {
		p.Release()
	}
	if s != src {
		s.Release()
	}
}

func (g *Generator) addConstInPlace(v *Value, imm int32) {
	g.emit(ir.Inst{Kind: ir.OpConst, Op: ir.OpAdd, Dst: v.Loc.Storage, Lhs: v.Loc.Storage, Imm32: imm})
}

// Access loads a struct field at a known byte offset. If isRef is false,
// base itself holds the struct (its address is taken first); if true,
// base already holds a pointer to it. Either way, Access consumes base:
// its address ends up released along with the field load in Deref.
func (g *Generator) Access(base *Value, isRef bool, offset, fieldSize int) *Value {
	var addr *Value
	if isRef {
		addr = g.EnsureStorage(base)
	} else {
		addr = g.RefOf(base)
	}
	if offset != 0 {
		g.addConstInPlace(addr, int32(offset))
	}
	return g.Deref(addr, fieldSize)
}

// Index computes base + index*elemSize and loads elemSize bytes from the
// result. base is handled the same way as in Access.
func (g *Generator) Index(base *Value, isRef bool, index *Value, elemSize int) *Value {
	var addr *Value
	if isRef {
		addr = g.EnsureStorage(base)
	} else {
		addr = g.RefOf(base)
	}
	idx := g.EnsureStorage(index)
	scaled := idx
	if elemSize != 1 {
		scaled = g.binaryOp(ir.OpMultiply, 4, idx, g.EmitInt(int32(elemSize)))
		if idx != index {
			idx.Release()
		}
	}
	g.emit(ir.Inst{Kind: ir.OpInst, Op: ir.OpAdd, Dst: addr.Loc.Storage, Lhs: addr.Loc.Storage, Rhs: scaled.Loc.Storage})
	scaled.Release()
	return g.Deref(addr, elemSize)
}

// FieldInit is one "offset = value" pair of a struct or array literal.
type FieldInit struct {
	Offset int
	Value  *Value
	Size   int
}

// NewAggregate allocates an addressable frame slot of the given total
// size and writes each field/element into it, used for both `new T {...}`
// struct literals and `[...]` array literals.
func (g *Generator) NewAggregate(totalSize int, fields []FieldInit) *Value {
	base := g.AllocateLocal(totalSize)
	for _, f := range fields {
		g.MoveToOffset(base, f.Offset, f.Value, f.Size)
		f.Value.Release()
	}
	return base
}

func (g *Generator) push(v *Value, size int) {
	switch v.Loc.Kind {
	case LocI32:
		g.emit(ir.Inst{Kind: ir.PushI32, Imm32: v.Loc.I32})
	case LocI8:
		g.emit(ir.Inst{Kind: ir.PushI8, Imm8: v.Loc.I8})
	case LocString:
		g.emit(ir.Inst{Kind: ir.PushString, Str: v.Loc.Str})
	default:
		s := g.EnsureStorage(v)
		g.emit(ir.Inst{Kind: ir.Push, Lhs: s.Loc.Storage, Size: size})
		if s != v {
			s.Release()
		}
	}
}

// Call lowers a call: the explicit arguments are pushed right-to-left, then
// (for big returns) the address of a hidden return area is pushed last,
// then the call itself, then a Pop of every byte pushed.
func (g *Generator) Call(name string, args []*Value, argSizes []int, retSize int) *Value {
	bigReturn := retSize > 4
	var retArea *Value
	if bigReturn {
		retArea = g.AllocateLocal(retSize)
	}

	total := 0
	for i := len(args) - 1; i >= 0; i-- {
		g.push(args[i], argSizes[i])
		total += argSizes[i]
		args[i].Release()
	}
	if bigReturn {
		addr := g.RefOf(retArea)
		g.push(addr, 4)
		addr.Release()
		total += 4
	}

	var dst *Value
	switch {
	case bigReturn:
		dst = retArea
	case retSize > 0:
		dst = g.allocate(retSize)
	default:
		dst = &Value{gen: g, Loc: Location{Kind: LocNull}}
	}

	var dstStorage ir.Storage
	if dst.Loc.Kind == LocStorage {
		dstStorage = dst.Loc.Storage
	}
	g.emit(ir.Inst{Kind: ir.Call, Name: name, Dst: dstStorage, Size: retSize})
	if total > 0 {
		g.emit(ir.Inst{Kind: ir.Pop, Count: total})
	}
	return dst
}

// CreateLabel returns a fresh label name built from prefix, unique within
// this generator's lifetime.
func (g *Generator) CreateLabel(prefix string) string {
	name := fmt.Sprintf("%s%d", prefix, g.labelSeq)
	g.labelSeq++
	return name
}

func (g *Generator) EmitLabel(name string) { g.emit(ir.Inst{Kind: ir.Label, Name: name}) }
func (g *Generator) Goto(name string)      { g.emit(ir.Inst{Kind: ir.Goto, Name: name}) }

// GotoIfNot branches to name when cond is false (zero).
func (g *Generator) GotoIfNot(name string, cond *Value) {
	c := g.EnsureStorage(cond)
	g.emit(ir.Inst{Kind: ir.GotoIfNot, Name: name, Lhs: c.Loc.Storage})
	if c != cond {
		c.Release()
	}
}

// Return emits the function's result and releases its handle — emitted
// even though it follows the instruction that ends control flow, so that
// every AllocateRegister in the stream still has a matching FreeRegister.
func (g *Generator) Return(v *Value, size int) {
	s := g.EnsureStorage(v)
	g.emit(ir.Inst{Kind: ir.Return, Lhs: s.Loc.Storage, Size: size})
	s.Release()
}

// StartFunction closes any function currently open, begins a new one,
// and returns one handle per parameter addressed left to right.
func (g *Generator) StartFunction(name string, paramSizes []int) []*Value {
	if g.cur != nil {
		g.Program.Functions = append(g.Program.Functions, *g.cur)
	}
	g.cur = &ir.Function{Name: name}
	g.nextReg = 0
	g.freeRegs = nil

	params := make([]*Value, len(paramSizes))
	offset := 0
	for i, size := range paramSizes {
		params[i] = &Value{gen: g, Loc: Location{Kind: LocStorage, Storage: ir.Param(offset), Size: size}}
		offset += size
	}
	return params
}

// AddExtern records name in the program's extern set, deduplicating.
func (g *Generator) AddExtern(name string) {
	for _, e := range g.Program.Externs {
		if e == name {
			return
		}
	}
	g.Program.Externs = append(g.Program.Externs, name)
}

// Finish closes the last open function and returns the completed program.
func (g *Generator) Finish() ir.Program {
	if g.cur != nil {
		g.Program.Functions = append(g.Program.Functions, *g.cur)
		g.cur = nil
	}
	return g.Program
}
