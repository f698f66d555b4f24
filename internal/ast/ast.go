// Package ast defines the tree the compiler core consumes. Nothing in this
// module builds an ast.SourceFile from source text — that is the parser's
// job, outside this module's scope. Tests construct these values by hand.
package ast

import "github.com/benjilks-fork/funcc/internal/token"

// DataType is the tagged sum of every type the source language can name.
// It lives in ast rather than internal/types because the parser produces
// DataType values directly out of type syntax; internal/types turns an
// ast.DataType into a resolved, sized types.Type.
type DataType struct {
	Kind DataTypeKind
	// Elem is the pointee/element type for Ref and Array, and the bound
	// type argument for Generic.
	Elem *DataType
	// Name is the struct name for Struct and Generic.
	Name string
	// Len is the element count for Array.
	Len int
}

type DataTypeKind int

const (
	DTNull DataTypeKind = iota
	DTInt
	DTChar
	DTBool
	DTStruct
	DTArray
	DTRef
	DTGeneric
)

func Null() DataType                 { return DataType{Kind: DTNull} }
func Int() DataType                  { return DataType{Kind: DTInt} }
func Char() DataType                 { return DataType{Kind: DTChar} }
func Bool() DataType                 { return DataType{Kind: DTBool} }
func Struct(name string) DataType    { return DataType{Kind: DTStruct, Name: name} }
func Ref(elem DataType) DataType     { return DataType{Kind: DTRef, Elem: &elem} }
func Array(elem DataType, n int) DataType {
	return DataType{Kind: DTArray, Elem: &elem, Len: n}
}
func Generic(arg DataType, name string) DataType {
	return DataType{Kind: DTGeneric, Elem: &arg, Name: name}
}

// TypeDescKind distinguishes a parameter that must match structurally from
// one that accepts any argument type.
type TypeDescKind int

const (
	DescExact TypeDescKind = iota
	DescAny
)

// TypeDescription is a function parameter's declared acceptance rule.
type TypeDescription struct {
	Kind TypeDescKind
	Type DataType // meaningful only when Kind == DescExact
}

func Exact(t DataType) TypeDescription { return TypeDescription{Kind: DescExact, Type: t} }
func Any() TypeDescription             { return TypeDescription{Kind: DescAny} }

// Field is one member of a struct declaration.
type Field struct {
	Name     token.Token
	DataType DataType
}

// StructDecl is a named record, optionally parameterized by one type
// variable (TypeVariable != "").
type StructDecl struct {
	Name         token.Token
	TypeVariable string
	Fields       []Field
}

// OperationType enumerates every binary/unary operator node.
type OperationType int

const (
	OpAdd OperationType = iota
	OpSubtract
	OpMultiply
	OpGreaterThan
	OpLessThan
	OpRef
	OpDeref
	OpIndexed
	OpAccess
	OpSizeof
	OpAssign
)

// Operation is a unary or binary operator application. Rhs is nil for the
// unary operators (Ref, Deref, Sizeof).
type Operation struct {
	Type OperationType
	Lhs  *Expression
	Rhs  *Expression // nil for unary operators
}

// Call is a function-call expression. TypeArgument, when non-nil, is the
// call site's explicit "of T" type argument.
type Call struct {
	Callable     *Expression
	Arguments    []Expression
	TypeArgument *DataType
}

// ExternCall is a call to a linker-resolved name; it carries its own
// return-type annotation since externs have no declared signature to
// derive one from.
type ExternCall struct {
	Name       token.Token
	Arguments  []Expression
	ReturnType *DataType
}

// InitializerListField is one "name = expr" pair inside a `new T { ... }`
// literal.
type InitializerListField struct {
	Name  token.Token
	Value Expression
}

// InitializerList is a `new T { field = value, ... }` literal; DataType is
// the syntactic annotation T, used verbatim as the expression's type.
type InitializerList struct {
	DataType DataType
	Fields   []InitializerListField
}

// ExpressionKind discriminates the Expression tagged union.
type ExpressionKind int

const (
	ExprOperation ExpressionKind = iota
	ExprCall
	ExprExternCall
	ExprInitializerList
	ExprArrayLiteral
	ExprIntLiteral
	ExprBoolLiteral
	ExprStringLiteral
	ExprCharLiteral
	ExprIdentifier
)

// Expression is every kind of value-producing syntax node. Only the
// field(s) matching Kind are meaningful.
type Expression struct {
	Kind ExpressionKind

	Operation       *Operation
	Call            *Call
	ExternCall      *ExternCall
	InitializerList *InitializerList
	ArrayLiteral    []Expression

	IntValue    int32
	BoolValue   bool
	StringToken token.Token
	CharToken   token.Token
	Identifier  token.Token
}

// Equal reports structural equality, ignoring any source position —
// field/name bookkeeping token positions included in DataType is limited
// to struct/generic names, which are plain strings already.
func (t DataType) Equal(other DataType) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case DTStruct:
		return t.Name == other.Name
	case DTArray:
		return t.Len == other.Len && t.Elem.Equal(*other.Elem)
	case DTRef:
		return t.Elem.Equal(*other.Elem)
	case DTGeneric:
		return t.Name == other.Name && t.Elem.Equal(*other.Elem)
	default:
		return true
	}
}

// Token returns the position most representative of this expression, for
// diagnostics; nil if the expression carries no position of its own,
// mirroring Expression::token() in the reference implementation.
func (e *Expression) Token() *token.Position {
	switch e.Kind {
	case ExprOperation:
		return e.Operation.Lhs.Token()
	case ExprCall:
		return e.Call.Callable.Token()
	case ExprExternCall:
		return e.ExternCall.Name.Position()
	case ExprInitializerList:
		if len(e.InitializerList.Fields) == 0 {
			return nil
		}
		return e.InitializerList.Fields[0].Name.Position()
	case ExprArrayLiteral:
		if len(e.ArrayLiteral) == 0 {
			return nil
		}
		return e.ArrayLiteral[0].Token()
	case ExprStringLiteral:
		return e.StringToken.Position()
	case ExprCharLiteral:
		return e.CharToken.Position()
	case ExprIdentifier:
		return e.Identifier.Position()
	default:
		return nil
	}
}

// Let binds the result of an expression to a name for the rest of the
// enclosing block.
type Let struct {
	Name  token.Token
	Value Expression
}

// If is a conditional with an optional else branch.
type If struct {
	Condition Expression
	Block     []Statement
	ElseBlock []Statement // nil if there is no else branch
}

// StatementKind discriminates the Statement tagged union.
type StatementKind int

const (
	StmtExpression StatementKind = iota
	StmtReturn
	StmtLet
	StmtIf
	StmtLoop
	StmtWhile
	StmtBreak
)

// Statement is every kind of statement-level syntax node.
type Statement struct {
	Kind StatementKind

	Expression Expression  // StmtExpression, StmtReturn
	Let        *Let        // StmtLet
	If         *If         // StmtIf
	Block      []Statement // StmtLoop, StmtWhile (the loop body)
	Condition  *Expression // StmtWhile
}

// Param is one formal parameter of a function declaration.
type Param struct {
	Name            token.Token
	TypeDescription TypeDescription
}

// Function is one overload of a (possibly overloaded, possibly generic)
// source-level function name. Body is nil for a declaration with no
// definition.
type Function struct {
	Name         token.Token
	Params       []Param
	TypeVariable string // "" if not generic
	ReturnType   *DataType
	Body         []Statement // nil if this is a declaration only
}

// SourceFile is the root of one compilation unit.
type SourceFile struct {
	Functions []Function
	Structs   []StructDecl
	Externs   []token.Token
}
