package compiler

import (
	"github.com/benjilks-fork/funcc/internal/ast"
	"github.com/benjilks-fork/funcc/internal/cerr"
	"github.com/benjilks-fork/funcc/internal/irgen"
	"github.com/benjilks-fork/funcc/internal/symtab"
	"github.com/benjilks-fork/funcc/internal/types"
)

// blockContext carries the state a statement needs from its enclosing
// function and loop: the function's declared return type (nil if the
// function has no return-type annotation, in which case a returned
// expression's type goes unchecked), the pre-allocated return area for a
// big (>4 byte) return value, and the label to jump to on break.
type blockContext struct {
	returnType *ast.DataType
	returnTo   *irgen.Value
	loopEnd    string
}

func (c *Compiler) compileLet(scope *symtab.Scope, let *ast.Let) error {
	dataType, err := types.DeriveType(scope, c.Resolver, &let.Value)
	if err != nil {
		return err
	}
	size, err := types.SizeOf(scope, dataType)
	if err != nil {
		return err
	}

	// A struct or array literal already builds itself in a fresh frame slot
	// of its own; bind that slot directly instead of copying it into a
	// second one.
	if let.Value.Kind == ast.ExprInitializerList || let.Value.Kind == ast.ExprArrayLiteral {
		value, err := c.compileExpression(scope, &let.Value)
		if err != nil {
			return err
		}
		return scope.DefineValue(let.Name.Content(), value, dataType)
	}

	local := c.Gen.AllocateLocal(size)
	value, err := c.compileExpression(scope, &let.Value)
	if err != nil {
		return err
	}
	c.Gen.Move(local, value, size)
	value.Release()

	return scope.DefineValue(let.Name.Content(), local, dataType)
}

func (c *Compiler) compileReturn(scope *symtab.Scope, expr *ast.Expression, ctx blockContext) error {
	dataType, err := types.DeriveType(scope, c.Resolver, expr)
	if err != nil {
		return err
	}
	if ctx.returnType != nil && !ctx.returnType.Equal(dataType) {
		return cerr.NewCompileError(expr.Token(), "cannot return a value of type %q from a function returning %q",
			types.Mangle(dataType), types.Mangle(*ctx.returnType))
	}

	value, err := c.compileExpression(scope, expr)
	if err != nil {
		return err
	}
	size, err := types.SizeOf(scope, dataType)
	if err != nil {
		return err
	}

	if ctx.returnTo != nil {
		// ctx.returnTo holds the hidden return-area pointer itself, not the
		// return area — write the value through it rather than over it, or
		// this would clobber the parameter slot (and, at offset 0, the
		// saved return address beyond it).
		c.Gen.StoreThroughPointer(ctx.returnTo, value, size)
		value.Release()
		c.Gen.Return(ctx.returnTo, size)
		return nil
	}
	c.Gen.Return(value, size)
	return nil
}

func (c *Compiler) compileBlock(scope *symtab.Scope, block []ast.Statement, ctx blockContext) error {
	local := scope.NewChild()
	for i := range block {
		if err := c.compileStatement(local, &block[i], ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileIf(scope *symtab.Scope, ifStmt *ast.If, ctx blockContext) error {
	elseLabel := c.Gen.CreateLabel("else")
	endIfLabel := c.Gen.CreateLabel("end_if")

	cond, err := c.compileExpression(scope, &ifStmt.Condition)
	if err != nil {
		return err
	}
	c.Gen.GotoIfNot(elseLabel, cond)
	cond.Release()

	if err := c.compileBlock(scope, ifStmt.Block, ctx); err != nil {
		return err
	}
	c.Gen.Goto(endIfLabel)

	c.Gen.EmitLabel(elseLabel)
	if ifStmt.ElseBlock != nil {
		if err := c.compileBlock(scope, ifStmt.ElseBlock, ctx); err != nil {
			return err
		}
	}

	c.Gen.EmitLabel(endIfLabel)
	return nil
}

func (c *Compiler) compileLoop(scope *symtab.Scope, block []ast.Statement, ctx blockContext) error {
	startLabel := c.Gen.CreateLabel("loop_start")
	endLabel := c.Gen.CreateLabel("loop_end")

	c.Gen.EmitLabel(startLabel)
	loopCtx := ctx
	loopCtx.loopEnd = endLabel
	if err := c.compileBlock(scope, block, loopCtx); err != nil {
		return err
	}
	c.Gen.Goto(startLabel)
	c.Gen.EmitLabel(endLabel)
	return nil
}

func (c *Compiler) compileWhile(scope *symtab.Scope, condition *ast.Expression, block []ast.Statement, ctx blockContext) error {
	startLabel := c.Gen.CreateLabel("while_start")
	endLabel := c.Gen.CreateLabel("while_end")

	c.Gen.EmitLabel(startLabel)
	cond, err := c.compileExpression(scope, condition)
	if err != nil {
		return err
	}
	c.Gen.GotoIfNot(endLabel, cond)
	cond.Release()

	loopCtx := ctx
	loopCtx.loopEnd = endLabel
	if err := c.compileBlock(scope, block, loopCtx); err != nil {
		return err
	}
	c.Gen.Goto(startLabel)
	c.Gen.EmitLabel(endLabel)
	return nil
}

func (c *Compiler) compileBreak(ctx blockContext) error {
	if ctx.loopEnd == "" {
		return cerr.NewCompileErrorNoPosition("break used outside of a loop")
	}
	c.Gen.Goto(ctx.loopEnd)
	return nil
}

func (c *Compiler) compileStatement(scope *symtab.Scope, stmt *ast.Statement, ctx blockContext) error {
	switch stmt.Kind {
	case ast.StmtExpression:
		value, err := c.compileExpression(scope, &stmt.Expression)
		if err != nil {
			return err
		}
		value.Release()
		return nil

	case ast.StmtLet:
		return c.compileLet(scope, stmt.Let)

	case ast.StmtIf:
		return c.compileIf(scope, stmt.If, ctx)

	case ast.StmtReturn:
		return c.compileReturn(scope, &stmt.Expression, ctx)

	case ast.StmtLoop:
		return c.compileLoop(scope, stmt.Block, ctx)

	case ast.StmtWhile:
		return c.compileWhile(scope, stmt.Condition, stmt.Block, ctx)

	case ast.StmtBreak:
		return c.compileBreak(ctx)

	default:
		return cerr.NewCompileErrorNoPosition("unhandled statement kind")
	}
}
