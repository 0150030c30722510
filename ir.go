package main

import (
	"fmt"
	"strings"
)

// IRVersionAtom is the only version header the reader accepts. Anything
// else, including the legacy "mee_ir v0", is a structural error.
const IRVersionAtom = "v1"

// IRNode is satisfied by every statement and expression node of the
// coatl_ir v1 grammar. Write renders the node back to its exact
// wire-format s-expression text, the inverse of ir_reader.go's parser.
type IRNode interface {
	Write(w *strings.Builder)
}

// IRModule is the top-level container: (coatl_ir v1 (structs …)
// (functions …)). Structs never carry content of their own in the IR,
// every struct-valued binding has already been scalarized away by the
// frontend, so Structs exists only so the wire
// format round-trips the empty list literally.
type IRModule struct {
	Structs   []string
	Functions []*IRFunc
}

func (m *IRModule) Render() string {
	var sb strings.Builder
	sb.WriteString("(coatl_ir v1 (structs")
	for _, s := range m.Structs {
		sb.WriteByte(' ')
		sb.WriteString(s)
	}
	sb.WriteString(") (functions")
	for _, f := range m.Functions {
		sb.WriteByte(' ')
		f.Write(&sb)
	}
	sb.WriteString("))")
	return sb.String()
}

// IRParam is one (param NAME TYPE) entry in a function's parameter list.
type IRParam struct {
	Name string
	Type string
}

// IRFunc is (fn NAME (params (param NAME TYPE)*) (ret TYPE) BLOCK).
type IRFunc struct {
	Name    string
	Params  []IRParam
	RetType string
	Body    *IRBlock
}

func (f *IRFunc) Write(w *strings.Builder) {
	w.WriteString("(fn ")
	w.WriteString(f.Name)
	w.WriteString(" (params")
	for _, p := range f.Params {
		fmt.Fprintf(w, " (param %s %s)", p.Name, p.Type)
	}
	w.WriteString(") (ret ")
	w.WriteString(f.RetType)
	w.WriteString(") ")
	f.Body.Write(w)
	w.WriteByte(')')
}

// IRBlock is (block STMT*), the only grouping construct. if/while bodies
// are blocks, not nested statement lists of their own shape.
type IRBlock struct {
	Stmts []IRNode
}

func (b *IRBlock) Write(w *strings.Builder) {
	w.WriteString("(block")
	for _, s := range b.Stmts {
		w.WriteByte(' ')
		s.Write(w)
	}
	w.WriteByte(')')
}

// IRLet is (let NAME TYPE EXPR).
type IRLet struct {
	Name string
	Type string
	Expr IRNode
}

func (n *IRLet) Write(w *strings.Builder) {
	w.WriteString("(let ")
	w.WriteString(n.Name)
	w.WriteByte(' ')
	w.WriteString(n.Type)
	w.WriteByte(' ')
	n.Expr.Write(w)
	w.WriteByte(')')
}

// IRAssign is (assign NAME EXPR).
type IRAssign struct {
	Name string
	Expr IRNode
}

func (n *IRAssign) Write(w *strings.Builder) {
	w.WriteString("(assign ")
	w.WriteString(n.Name)
	w.WriteByte(' ')
	n.Expr.Write(w)
	w.WriteByte(')')
}

// IRFieldAssign is (field_assign VAR FIELD EXPR), the one struct-shaped
// statement the IR still carries; codegen resolves it to a store into the
// scalarized local VAR__FIELD.
type IRFieldAssign struct {
	Var   string
	Field string
	Expr  IRNode
}

func (n *IRFieldAssign) Write(w *strings.Builder) {
	w.WriteString("(field_assign ")
	w.WriteString(n.Var)
	w.WriteByte(' ')
	w.WriteString(n.Field)
	w.WriteByte(' ')
	n.Expr.Write(w)
	w.WriteByte(')')
}

// IRReturn is (return EXPR).
type IRReturn struct {
	Expr IRNode
}

func (n *IRReturn) Write(w *strings.Builder) {
	w.WriteString("(return ")
	n.Expr.Write(w)
	w.WriteByte(')')
}

// IRExprStmt is (expr EXPR): an expression evaluated for side effects only.
type IRExprStmt struct {
	Expr IRNode
}

func (n *IRExprStmt) Write(w *strings.Builder) {
	w.WriteString("(expr ")
	n.Expr.Write(w)
	w.WriteByte(')')
}

// IRIf is (if EXPR BLOCK [(else BLOCK)]).
type IRIf struct {
	Cond IRNode
	Then *IRBlock
	Else *IRBlock // nil when there is no else clause
}

func (n *IRIf) Write(w *strings.Builder) {
	w.WriteString("(if ")
	n.Cond.Write(w)
	w.WriteByte(' ')
	n.Then.Write(w)
	if n.Else != nil {
		w.WriteString(" (else ")
		n.Else.Write(w)
		w.WriteByte(')')
	}
	w.WriteByte(')')
}

// IRWhile is (while EXPR BLOCK).
type IRWhile struct {
	Cond IRNode
	Body *IRBlock
}

func (n *IRWhile) Write(w *strings.Builder) {
	w.WriteString("(while ")
	n.Cond.Write(w)
	w.WriteByte(' ')
	n.Body.Write(w)
	w.WriteByte(')')
}

// --- expressions ---

// IRInt is (int N): a bare i32 literal.
type IRInt struct{ Value string }

func (n *IRInt) Write(w *strings.Builder) { fmt.Fprintf(w, "(int %s)", n.Value) }

// IRIntI64 is (int_i64 N).
type IRIntI64 struct{ Value string }

func (n *IRIntI64) Write(w *strings.Builder) { fmt.Fprintf(w, "(int_i64 %s)", n.Value) }

// IRFloatF32 is (float_f32 F).
type IRFloatF32 struct{ Value string }

func (n *IRFloatF32) Write(w *strings.Builder) { fmt.Fprintf(w, "(float_f32 %s)", n.Value) }

// IRFloatF64 is (float_f64 F).
type IRFloatF64 struct{ Value string }

func (n *IRFloatF64) Write(w *strings.Builder) { fmt.Fprintf(w, "(float_f64 %s)", n.Value) }

// IRBoolLit is (bool 0|1).
type IRBoolLit struct{ Value bool }

func (n *IRBoolLit) Write(w *strings.Builder) {
	if n.Value {
		w.WriteString("(bool 1)")
	} else {
		w.WriteString("(bool 0)")
	}
}

// IRStringLit is (string "…").
type IRStringLit struct{ Value string }

func (n *IRStringLit) Write(w *strings.Builder) { fmt.Fprintf(w, "(string %q)", n.Value) }

// IRIdent is (ident NAME).
type IRIdent struct{ Name string }

func (n *IRIdent) Write(w *strings.Builder) { fmt.Fprintf(w, "(ident %s)", n.Name) }

// IRCall is (call FN ARG*).
type IRCall struct {
	Fn   string
	Args []IRNode
}

func (n *IRCall) Write(w *strings.Builder) {
	w.WriteString("(call ")
	w.WriteString(n.Fn)
	for _, a := range n.Args {
		w.WriteByte(' ')
		a.Write(w)
	}
	w.WriteByte(')')
}

// IRBinary is (binary OP [TYPE] LHS RHS). Type is omitted when the
// resolved operand type is i32, since a binary node "carries the resolved
// operand type when it is not i32".
type IRBinary struct {
	Op   string
	Type string // "" when i32
	LHS  IRNode
	RHS  IRNode
}

func (n *IRBinary) Write(w *strings.Builder) {
	w.WriteString("(binary ")
	w.WriteString(n.Op)
	w.WriteByte(' ')
	if n.Type != "" {
		w.WriteString(n.Type)
		w.WriteByte(' ')
	}
	n.LHS.Write(w)
	w.WriteByte(' ')
	n.RHS.Write(w)
	w.WriteByte(')')
}

// IRArrayAlloc is (array_alloc ELEM N).
type IRArrayAlloc struct {
	Elem string
	N    int
}

func (n *IRArrayAlloc) Write(w *strings.Builder) {
	fmt.Fprintf(w, "(array_alloc %s %d)", n.Elem, n.N)
}

// IRArraySet is (array_set ELEM ARR IDX VAL).
type IRArraySet struct {
	Elem string
	Arr  IRNode
	Idx  IRNode
	Val  IRNode
}

func (n *IRArraySet) Write(w *strings.Builder) {
	w.WriteString("(array_set ")
	w.WriteString(n.Elem)
	w.WriteByte(' ')
	n.Arr.Write(w)
	w.WriteByte(' ')
	n.Idx.Write(w)
	w.WriteByte(' ')
	n.Val.Write(w)
	w.WriteByte(')')
}

// IRArrayGet is (array_get ELEM ARR IDX).
type IRArrayGet struct {
	Elem string
	Arr  IRNode
	Idx  IRNode
}

func (n *IRArrayGet) Write(w *strings.Builder) {
	w.WriteString("(array_get ")
	w.WriteString(n.Elem)
	w.WriteByte(' ')
	n.Arr.Write(w)
	w.WriteByte(' ')
	n.Idx.Write(w)
	w.WriteByte(')')
}

// IRStrLen is (str_len EXPR).
type IRStrLen struct{ Expr IRNode }

func (n *IRStrLen) Write(w *strings.Builder) {
	w.WriteString("(str_len ")
	n.Expr.Write(w)
	w.WriteByte(')')
}

// IRStrPtr is (str_ptr EXPR).
type IRStrPtr struct{ Expr IRNode }

func (n *IRStrPtr) Write(w *strings.Builder) {
	w.WriteString("(str_ptr ")
	n.Expr.Write(w)
	w.WriteByte(')')
}
