package main

import (
	"fmt"
	"sort"
	"strings"
)

// intArgRegs/floatArgRegs/intArgRegs32 are the System V AMD64 argument
// registers: six integer, eight XMM.
var intArgRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
var intArgRegs32 = []string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}
var floatArgRegs = []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"}

// AsmWriter accumulates `.intel_syntax noprefix` text, one mnemonic per
// method, the textual analogue of flapc's byte-emitting `X86_64CodeGen` /
// `emit.go` abstraction.
type AsmWriter struct {
	sb strings.Builder
}

func (w *AsmWriter) raw(line string) { w.sb.WriteString(line); w.sb.WriteByte('\n') }

func (w *AsmWriter) Label(name string) { fmt.Fprintf(&w.sb, "%s:\n", name) }
func (w *AsmWriter) Comment(s string)  { fmt.Fprintf(&w.sb, "  # %s\n", s) }
func (w *AsmWriter) Directive(s string) { fmt.Fprintf(&w.sb, "%s\n", s) }

func (w *AsmWriter) Ins(mnemonic string, operands ...string) {
	if len(operands) == 0 {
		fmt.Fprintf(&w.sb, "  %s\n", mnemonic)
		return
	}
	fmt.Fprintf(&w.sb, "  %s %s\n", mnemonic, strings.Join(operands, ", "))
}

func (w *AsmWriter) Push(reg string) { w.Ins("push", reg) }
func (w *AsmWriter) Pop(reg string)  { w.Ins("pop", reg) }
func (w *AsmWriter) Mov(dst, src string) { w.Ins("mov", dst, src) }
func (w *AsmWriter) Lea(dst, src string) { w.Ins("lea", dst, src) }
func (w *AsmWriter) Call(target string)  { w.Ins("call", target) }
func (w *AsmWriter) Jmp(target string)   { w.Ins("jmp", target) }
func (w *AsmWriter) Jz(target string)    { w.Ins("jz", target) }
func (w *AsmWriter) Test(a, b string)    { w.Ins("test", a, b) }
func (w *AsmWriter) Cmp(a, b string)     { w.Ins("cmp", a, b) }
func (w *AsmWriter) Ret()                { w.Ins("ret") }

func (w *AsmWriter) String() string { return w.sb.String() }

// Frame describes one function's local-slot assignment: every local gets
// a fixed negative rbp offset, sorted by name, the frame size rounded up
// to 16 bytes. types records each local/parameter's declared scalar
// kind, needed by expression codegen to pick load/store widths and
// integer-vs-float register classes.
type Frame struct {
	offsets map[string]int
	types   map[string]ScalarKind
	size    int
}

func irTypeKind(t string) ScalarKind {
	switch t {
	case "i64":
		return KindI64
	case "f32":
		return KindF32
	case "f64":
		return KindF64
	case "bool":
		return KindBool
	case "str":
		return KindStr
	default:
		return KindI32
	}
}

func buildFrame(fn *IRFunc, params []IRParam) *Frame {
	types := map[string]ScalarKind{}
	for _, p := range params {
		types[p.Name] = irTypeKind(p.Type)
	}
	collectLocals(fn.Body, types)

	var sorted []string
	for n := range types {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	f := &Frame{offsets: map[string]int{}, types: types}
	off := 0
	for _, n := range sorted {
		off += 8 // every slot is a full qword; simplest uniform frame layout
		f.offsets[n] = -off
	}
	f.size = (off + 15) &^ 15
	return f
}

func collectLocals(b *IRBlock, types map[string]ScalarKind) {
	for _, s := range b.Stmts {
		switch st := s.(type) {
		case *IRLet:
			types[st.Name] = irTypeKind(st.Type)
		case *IRIf:
			collectLocals(st.Then, types)
			if st.Else != nil {
				collectLocals(st.Else, types)
			}
		case *IRWhile:
			collectLocals(st.Body, types)
		}
	}
}

// CodeGen lowers one IRModule to a single `.s` text blob: the runtime
// prelude followed by every function's body.
type CodeGen struct {
	w           AsmWriter
	strings     map[string]int // decoded string -> assigned address
	stringOrder []string
	nextStrAddr int
	labelCount  int
	frame       *Frame
	fn          *IRFunc
	retTypes    map[string]ScalarKind
	pushDepth   int // outstanding expression-stack pushes, for call-site alignment
}

// push/pop wrap the asm-level push/pop for expression codegen, keeping
// pushDepth in sync so a call nested inside an already-pushed expression
// (e.g. a binary operand) can still compute correct 16-byte alignment.
func (g *CodeGen) push(reg string) {
	g.w.Push(reg)
	g.pushDepth++
}

func (g *CodeGen) pop(reg string) {
	g.w.Pop(reg)
	g.pushDepth--
}

func NewCodeGen() *CodeGen {
	return &CodeGen{strings: map[string]int{}, nextStrAddr: StringTableBase}
}

// Emit lowers the whole module and returns the assembled `.s` text.
func (g *CodeGen) Emit(mod *IRModule) (string, error) {
	g.retTypes = map[string]ScalarKind{}
	for _, fn := range mod.Functions {
		g.retTypes[fn.Name] = irTypeKind(fn.RetType)
	}
	g.collectStrings(mod)

	g.w.Directive(".intel_syntax noprefix")
	g.w.Directive(".text")
	g.w.Directive(".globl coatl_start")

	g.emitPrelude()

	for _, fn := range mod.Functions {
		if err := g.emitFunc(fn); err != nil {
			return "", err
		}
	}

	g.w.Directive(".bss")
	g.w.Directive(".align 16")
	g.w.Label("__coatl_mem")
	fmt.Fprintf(&g.w.sb, "  .skip %d\n", DefaultArenaSize)

	return g.w.String(), nil
}

func (g *CodeGen) collectStrings(mod *IRModule) {
	for _, fn := range mod.Functions {
		collectStringsBlock(fn.Body, g)
	}
}

func collectStringsBlock(b *IRBlock, g *CodeGen) {
	for _, s := range b.Stmts {
		collectStringsStmt(s, g)
	}
}

func collectStringsStmt(s IRNode, g *CodeGen) {
	switch st := s.(type) {
	case *IRLet:
		collectStringsExpr(st.Expr, g)
	case *IRAssign:
		collectStringsExpr(st.Expr, g)
	case *IRFieldAssign:
		collectStringsExpr(st.Expr, g)
	case *IRReturn:
		collectStringsExpr(st.Expr, g)
	case *IRExprStmt:
		collectStringsExpr(st.Expr, g)
	case *IRIf:
		collectStringsExpr(st.Cond, g)
		collectStringsBlock(st.Then, g)
		if st.Else != nil {
			collectStringsBlock(st.Else, g)
		}
	case *IRWhile:
		collectStringsExpr(st.Cond, g)
		collectStringsBlock(st.Body, g)
	}
}

func collectStringsExpr(e IRNode, g *CodeGen) {
	switch ex := e.(type) {
	case *IRStringLit:
		g.internString(ex.Value)
	case *IRBinary:
		collectStringsExpr(ex.LHS, g)
		collectStringsExpr(ex.RHS, g)
	case *IRCall:
		for _, a := range ex.Args {
			collectStringsExpr(a, g)
		}
	case *IRArraySet:
		collectStringsExpr(ex.Arr, g)
		collectStringsExpr(ex.Idx, g)
		collectStringsExpr(ex.Val, g)
	case *IRArrayGet:
		collectStringsExpr(ex.Arr, g)
		collectStringsExpr(ex.Idx, g)
	case *IRStrLen:
		collectStringsExpr(ex.Expr, g)
	case *IRStrPtr:
		collectStringsExpr(ex.Expr, g)
	}
}

// internString assigns the next free address in the string table to a
// newly seen decoded byte sequence, in first-sight order, so addresses
// stay deterministic across runs. A string value is the address of an
// 8-byte {ptr,len} header; the decoded bytes themselves, NUL-terminated,
// immediately follow the header at headerAddr+strHeaderSize.
func (g *CodeGen) internString(s string) int {
	if addr, ok := g.strings[s]; ok {
		return addr
	}
	addr := g.nextStrAddr
	g.strings[s] = addr
	g.stringOrder = append(g.stringOrder, s)
	g.nextStrAddr += strHeaderSize + len(s) + 1 // header + bytes + NUL
	return addr
}

// strHeaderSize is the width of a string value's {ptr,len} header: two
// dwords, pointer then length.
const strHeaderSize = 8

func (g *CodeGen) newLabel(prefix string) string {
	g.labelCount++
	return fmt.Sprintf(".L%s%d", prefix, g.labelCount)
}

// emitFunc implements the per-function pipeline: frame layout,
// prologue, parameter spilling, lazy-memory-init call, body, epilogue.
func (g *CodeGen) emitFunc(fn *IRFunc) error {
	g.fn = fn
	g.frame = buildFrame(fn, fn.Params)

	g.w.Label(fn.Name)
	g.w.Push("rbp")
	g.w.Mov("rbp", "rsp")
	g.w.Ins("sub", "rsp", fmt.Sprint(g.frame.size))

	g.spillParams(fn.Params)

	g.w.Call("__coatl_init_memory")

	epilogue := g.newLabel("epilogue")
	if err := g.emitBlock(fn.Body, epilogue); err != nil {
		return err
	}

	// falling off the end returns 0.
	g.w.Mov("rax", "0")
	g.w.Label(epilogue)
	if fn.RetType == "f32" || fn.RetType == "f64" {
		g.w.Ins("movq", "xmm0", "rax")
	}
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()
	return nil
}

// spillParams stores incoming ABI register/stack-slot values into the
// frame, classifying integer vs float by declared parameter type and
// deriving the overflow stack-slot index from the parameter's position in
// the original list, not a separate int/float counter.
func (g *CodeGen) spillParams(params []IRParam) {
	intIdx, floatIdx := 0, 0
	for pos, p := range params {
		isFloat := p.Type == "f32" || p.Type == "f64"
		off := g.frame.offsets[p.Name]
		dst := fmt.Sprintf("[rbp%+d]", off)

		if isFloat {
			if floatIdx < len(floatArgRegs) {
				if p.Type == "f32" {
					g.w.Ins("movss", "dword ptr "+dst, floatArgRegs[floatIdx])
				} else {
					g.w.Ins("movsd", "qword ptr "+dst, floatArgRegs[floatIdx])
				}
				floatIdx++
				continue
			}
		} else {
			if intIdx < len(intArgRegs) {
				if p.Type == "i64" || p.Type == "str" {
					g.w.Mov("qword ptr "+dst, intArgRegs[intIdx])
				} else {
					g.w.Mov("dword ptr "+dst, intArgRegs32[intIdx])
				}
				intIdx++
				continue
			}
		}
		// overflow: stack slot index is this parameter's position in the
		// original argument list, per the REDESIGN FLAG.
		src := fmt.Sprintf("[rbp+%d]", 16+8*pos)
		if isFloat {
			g.w.Mov("rax", src)
			if p.Type == "f32" {
				g.w.Ins("movd", "dword ptr "+dst, "eax")
			} else {
				g.w.Ins("movq", "qword ptr "+dst, "rax")
			}
		} else if p.Type == "i64" || p.Type == "str" {
			g.w.Mov("rax", src)
			g.w.Mov("qword ptr "+dst, "rax")
		} else {
			g.w.Mov("eax", src)
			g.w.Mov("dword ptr "+dst, "eax")
		}
	}
}

func (g *CodeGen) emitBlock(b *IRBlock, epilogue string) error {
	for _, s := range b.Stmts {
		if err := g.emitStmt(s, epilogue); err != nil {
			return err
		}
	}
	return nil
}

func (g *CodeGen) slot(name string) string {
	off, ok := g.frame.offsets[name]
	if !ok {
		return fmt.Sprintf("[rbp-8]") // unreachable when the frontend is correct
	}
	return fmt.Sprintf("[rbp%+d]", off)
}

func (g *CodeGen) emitStmt(s IRNode, epilogue string) error {
	switch st := s.(type) {
	case *IRLet:
		if _, err := g.emitExpr(st.Expr); err != nil {
			return err
		}
		g.storeResult(st.Name)
		return nil
	case *IRAssign:
		if _, err := g.emitExpr(st.Expr); err != nil {
			return err
		}
		g.storeResult(st.Name)
		return nil
	case *IRFieldAssign:
		if _, err := g.emitExpr(st.Expr); err != nil {
			return err
		}
		g.storeResult(ScalarizedName(st.Var, st.Field))
		return nil
	case *IRReturn:
		if _, err := g.emitExpr(st.Expr); err != nil {
			return err
		}
		g.w.Jmp(epilogue)
		return nil
	case *IRExprStmt:
		_, err := g.emitExpr(st.Expr)
		return err
	case *IRIf:
		if _, err := g.emitExpr(st.Cond); err != nil {
			return err
		}
		elseLabel := g.newLabel("else")
		endLabel := g.newLabel("endif")
		g.w.Test("eax", "eax")
		g.w.Jz(elseLabel)
		if err := g.emitBlock(st.Then, epilogue); err != nil {
			return err
		}
		g.w.Jmp(endLabel)
		g.w.Label(elseLabel)
		if st.Else != nil {
			if err := g.emitBlock(st.Else, epilogue); err != nil {
				return err
			}
		}
		g.w.Label(endLabel)
		return nil
	case *IRWhile:
		condLabel := g.newLabel("cond")
		endLabel := g.newLabel("whileend")
		g.w.Label(condLabel)
		if _, err := g.emitExpr(st.Cond); err != nil {
			return err
		}
		g.w.Test("eax", "eax")
		g.w.Jz(endLabel)
		if err := g.emitBlock(st.Body, epilogue); err != nil {
			return err
		}
		g.w.Jmp(condLabel)
		g.w.Label(endLabel)
		return nil
	default:
		return fmt.Errorf("codegen: unhandled statement node %T", s)
	}
}

// storeResult writes the "in rax / bitwise in rax" expression result
// into a local's frame slot, matching the local's declared storage width.
func (g *CodeGen) storeResult(name string) {
	dst := g.slot(name)
	switch g.frame.types[name] {
	case KindI64, KindF64, KindStr:
		g.w.Mov("qword ptr "+dst, "rax")
	default:
		g.w.Mov("dword ptr "+dst, "eax")
	}
}
