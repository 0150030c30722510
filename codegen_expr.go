package main

import "fmt"

// emitExpr emits code for one expression and leaves its result in rax
// (bitwise, for f32/f64) under a uniform expression contract. It
// returns the expression's resolved scalar kind so callers can pick the
// right store width / register class.
func (g *CodeGen) emitExpr(e IRNode) (ScalarKind, error) {
	switch ex := e.(type) {
	case *IRInt:
		g.w.Mov("eax", ex.Value)
		return KindI32, nil
	case *IRIntI64:
		g.w.Mov("rax", ex.Value)
		return KindI64, nil
	case *IRBoolLit:
		if ex.Value {
			g.w.Mov("eax", "1")
		} else {
			g.w.Mov("eax", "0")
		}
		return KindBool, nil
	case *IRFloatF32:
		bits := float32BitsLiteral(ex.Value)
		g.w.Mov("eax", bits)
		return KindF32, nil
	case *IRFloatF64:
		bits := float64BitsLiteral(ex.Value)
		g.w.Mov("rax", bits)
		return KindF64, nil
	case *IRStringLit:
		addr := g.internString(ex.Value)
		g.w.Mov("eax", fmt.Sprint(addr))
		return KindStr, nil
	case *IRIdent:
		return g.emitIdentLoad(ex.Name)
	case *IRBinary:
		return g.emitBinary(ex)
	case *IRCall:
		return g.emitCall(ex)
	case *IRArrayAlloc:
		return g.emitArrayAlloc(ex)
	case *IRArrayGet:
		return g.emitArrayGet(ex)
	case *IRArraySet:
		return g.emitArraySet(ex)
	case *IRStrLen:
		return g.emitStrLen(ex)
	case *IRStrPtr:
		return g.emitStrPtr(ex)
	default:
		return 0, fmt.Errorf("codegen: unhandled expression node %T", e)
	}
}

func float32BitsLiteral(text string) string {
	return fmt.Sprintf("0x%x", f32BitsOf(text))
}

func float64BitsLiteral(text string) string {
	return fmt.Sprintf("0x%x", f64BitsOf(text))
}

func (g *CodeGen) emitIdentLoad(name string) (ScalarKind, error) {
	typ := g.frame.types[name]
	src := g.slot(name)
	switch typ {
	case KindI64, KindStr:
		g.w.Mov("rax", "qword ptr "+src)
	case KindF64:
		g.w.Mov("rax", "qword ptr "+src)
	default:
		g.w.Mov("eax", "dword ptr "+src)
	}
	return typ, nil
}

// emitBinary implements the stack-discipline binop codegen:
// evaluate LHS, push rax, evaluate RHS, move to rcx, pop LHS back into
// rax, apply the instruction.
func (g *CodeGen) emitBinary(ex *IRBinary) (ScalarKind, error) {
	lt, err := g.emitExpr(ex.LHS)
	if err != nil {
		return 0, err
	}
	g.push("rax")
	rt, err := g.emitExpr(ex.RHS)
	if err != nil {
		return 0, err
	}
	resolved := resolveBinopType(lt, rt)
	if ex.Type != "" {
		resolved = irTypeKind(ex.Type)
	}

	if scalar(resolved).IsFloat() {
		return g.emitFloatBinary(ex.Op, resolved)
	}
	return g.emitIntBinary(ex.Op, resolved)
}

func (g *CodeGen) emitIntBinary(op string, resolved ScalarKind) (ScalarKind, error) {
	is64 := resolved == KindI64
	rax, rcx := "eax", "ecx"
	if is64 {
		rax, rcx = "rax", "rcx"
	}
	g.w.Mov(rcx, rax) // rhs now in rcx
	g.pop("rax")       // lhs back into rax

	switch op {
	case "add":
		g.w.Ins("add", rax, rcx)
		return resolved, nil
	case "sub":
		g.w.Ins("sub", rax, rcx)
		return resolved, nil
	case "mul":
		g.w.Ins("imul", rax, rcx)
		return resolved, nil
	case "div":
		if is64 {
			g.w.Ins("cqo")
		} else {
			g.w.Ins("cdq")
		}
		g.w.Ins("idiv", rcx)
		return resolved, nil
	case "and":
		g.w.Ins("and", rax, rcx)
		return KindBool, nil
	case "or":
		g.w.Ins("or", rax, rcx)
		return KindBool, nil
	case "eq", "ne", "lt", "le", "gt", "ge":
		g.w.Cmp(rax, rcx)
		setcc := intSetcc(op)
		g.w.Ins(setcc, "al")
		g.w.Ins("movzx", "eax", "al")
		return KindBool, nil
	default:
		return 0, fmt.Errorf("codegen: unknown int binop %q", op)
	}
}

func intSetcc(op string) string {
	switch op {
	case "eq":
		return "sete"
	case "ne":
		return "setne"
	case "lt":
		return "setl"
	case "le":
		return "setle"
	case "gt":
		return "setg"
	default:
		return "setge"
	}
}

// emitFloatBinary handles the float-class arithmetic and comparisons
// (addss/addsd, ucomiss/ucomisd with unsigned condition codes).
func (g *CodeGen) emitFloatBinary(op string, resolved ScalarKind) (ScalarKind, error) {
	is64 := resolved == KindF64
	suffix := "ss"
	if is64 {
		suffix = "sd"
	}
	// move both operands from their bitwise-int staging into xmm0/xmm1
	g.w.Ins("mov", "rcx", "rax") // rhs bits
	g.pop("rax")                 // lhs bits
	if is64 {
		g.w.Ins("movq", "xmm0", "rax")
		g.w.Ins("movq", "xmm1", "rcx")
	} else {
		g.w.Ins("movd", "xmm0", "eax")
		g.w.Ins("movd", "xmm1", "ecx")
	}

	switch op {
	case "add":
		g.w.Ins("add"+suffix, "xmm0", "xmm1")
	case "sub":
		g.w.Ins("sub"+suffix, "xmm0", "xmm1")
	case "mul":
		g.w.Ins("mul"+suffix, "xmm0", "xmm1")
	case "div":
		g.w.Ins("div"+suffix, "xmm0", "xmm1")
	case "eq", "ne", "lt", "le", "gt", "ge":
		cmp := "ucomiss"
		if is64 {
			cmp = "ucomisd"
		}
		g.w.Ins(cmp, "xmm0", "xmm1")
		g.w.Ins(floatSetcc(op), "al")
		g.w.Ins("movzx", "eax", "al")
		return KindBool, nil
	default:
		return 0, fmt.Errorf("codegen: unknown float binop %q", op)
	}

	if is64 {
		g.w.Ins("movq", "rax", "xmm0")
	} else {
		g.w.Ins("movd", "eax", "xmm0")
	}
	return resolved, nil
}

// floatSetcc picks the unsigned condition codes, since ucomiss/ucomisd
// report their result in CF/ZF the way an unsigned compare does. PF is not
// consulted: with an unordered (NaN) operand, eq, lt and le yield 1 and
// ne, gt and ge yield 0.
func floatSetcc(op string) string {
	switch op {
	case "eq":
		return "sete"
	case "ne":
		return "setne"
	case "lt":
		return "setb"
	case "le":
		return "setbe"
	case "gt":
		return "seta"
	default:
		return "setae"
	}
}

// emitCall implements the call codegen: integer/float argument
// classification, alignment padding against the full outstanding
// expression-stack depth, reverse-order evaluation with overflow
// arguments written straight to their reserved stack slot and register
// arguments staged through push/pop, and the f32/f64 result transfer
// back into rax so the caller's convention holds.
func (g *CodeGen) emitCall(ex *IRCall) (ScalarKind, error) {
	retType := g.callReturnType(ex.Fn)
	n := len(ex.Args)

	argClassFloat := make([]bool, n)
	overflowPos := make([]bool, n)
	intIdx, floatIdx := 0, 0
	for i := 0; i < n; i++ {
		isFloat := g.exprIsFloat(ex.Args[i])
		argClassFloat[i] = isFloat
		if isFloat {
			if floatIdx >= len(floatArgRegs) {
				overflowPos[i] = true
			}
			floatIdx++
		} else {
			if intIdx >= len(intArgRegs) {
				overflowPos[i] = true
			}
			intIdx++
		}
	}

	// the overflow region spans every position up to the last one that
	// overflows, not just the overflowing ones themselves, since the
	// callee reads an overflow argument at [rbp+16+8*pos] keyed by its
	// position in the full parameter list.
	regionSlots := 0
	for i := n - 1; i >= 0; i-- {
		if overflowPos[i] {
			regionSlots = i + 1
			break
		}
	}
	regionBytes := regionSlots * 8
	pad := 0
	if (g.pushDepth+regionSlots)%2 != 0 {
		pad = 8
		g.w.Ins("sub", "rsp", "8")
	}
	if regionBytes > 0 {
		g.w.Ins("sub", "rsp", fmt.Sprint(regionBytes))
	}
	// the padding and region stay reserved until cleanup, so a call nested
	// in one of the arguments aligns against them as well.
	reserved := regionSlots + pad/8
	g.pushDepth += reserved
	base := g.pushDepth

	// reverse-order evaluation. Every expression already leaves its
	// result bitwise in rax per the uniform expression contract, int or
	// float alike. An overflow argument is written straight into its
	// reserved slot; a register-class argument is staged on the
	// expression stack so a later argument's own scratch-register use
	// can never clobber an earlier one's destination register.
	for i := n - 1; i >= 0; i-- {
		if _, err := g.emitExpr(ex.Args[i]); err != nil {
			return 0, err
		}
		if overflowPos[i] {
			// register arguments staged so far sit below the region.
			g.w.Mov(fmt.Sprintf("qword ptr [rsp+%d]", i*8+8*(g.pushDepth-base)), "rax")
			continue
		}
		g.push("rax")
	}

	// pop staged register arguments into destination registers in
	// original parameter order.
	intIdx, floatIdx = 0, 0
	for i := 0; i < n; i++ {
		if overflowPos[i] {
			if argClassFloat[i] {
				floatIdx++
			} else {
				intIdx++
			}
			continue
		}
		g.pop("rax")
		if argClassFloat[i] {
			g.w.Ins("movq", floatArgRegs[floatIdx], "rax")
			floatIdx++
		} else {
			g.w.Mov(intArgRegs[intIdx], "rax")
			intIdx++
		}
	}

	g.w.Call(ex.Fn)

	if retType == KindF32 || retType == KindF64 {
		if retType == KindF64 {
			g.w.Ins("movq", "rax", "xmm0")
		} else {
			g.w.Ins("movd", "eax", "xmm0")
		}
	}

	cleanup := regionBytes + pad
	if cleanup > 0 {
		g.w.Ins("add", "rsp", fmt.Sprint(cleanup))
	}
	g.pushDepth -= reserved
	return retType, nil
}

// exprIsFloat/exprFloatKind give a best-effort static classification of
// an argument expression's type without a full second type-checking
// pass, by looking at literal kinds, identifier frame types, binary
// annotations (comparisons and and/or always yield an integer-class
// bool), call return types and array element types, sufficient because
// the frontend only ever emits float-valued expressions of these shapes.
func (g *CodeGen) exprIsFloat(e IRNode) bool {
	k := g.exprFloatKind(e)
	return k == KindF32 || k == KindF64
}

func (g *CodeGen) exprFloatKind(e IRNode) ScalarKind {
	switch ex := e.(type) {
	case *IRFloatF32:
		return KindF32
	case *IRFloatF64:
		return KindF64
	case *IRIdent:
		return g.frame.types[ex.Name]
	case *IRBinary:
		switch ex.Op {
		case "eq", "ne", "lt", "le", "gt", "ge", "and", "or":
			return KindBool
		}
		if ex.Type != "" {
			return irTypeKind(ex.Type)
		}
		return KindI32
	case *IRCall:
		return g.callReturnType(ex.Fn)
	case *IRArrayGet:
		return irTypeKind(ex.Elem)
	default:
		return KindI32
	}
}

func (g *CodeGen) callReturnType(name string) ScalarKind {
	// prelude intrinsics and unknown callees return i32 status codes.
	if g.retTypes == nil {
		return KindI32
	}
	if t, ok := g.retTypes[name]; ok {
		return t
	}
	return KindI32
}

// emitArrayAlloc implements the bump allocator: lazily initializes the
// heap pointer to just past the end of the interned string table on
// first use, initialized lazily by the first allocation,
// then loads it from absolute offset 4096 within __coatl_mem, stores back
// old+elemSize*N, and returns old in rax.
func (g *CodeGen) emitArrayAlloc(ex *IRArrayAlloc) (ScalarKind, error) {
	elemSize := scalar(irTypeKind(ex.Elem)).byteSize()
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Mov("eax", fmt.Sprintf("dword ptr [rbx+%d]", HeapPointerAddr))
	g.w.Cmp("eax", "0")
	haveHeap := g.newLabel("haveheap")
	g.w.Ins("jnz", haveHeap)
	g.w.Mov("eax", fmt.Sprint(g.heapInitialValue()))
	g.w.Mov(fmt.Sprintf("dword ptr [rbx+%d]", HeapPointerAddr), "eax")
	g.w.Label(haveHeap)
	g.w.Mov("ecx", "eax")
	g.w.Ins("add", "ecx", fmt.Sprint(elemSize*ex.N))
	g.w.Mov(fmt.Sprintf("dword ptr [rbx+%d]", HeapPointerAddr), "ecx")
	return KindI32, nil
}

// heapInitialValue is the first address the bump allocator hands out:
// just past every interned string's header-plus-bytes-plus-NUL span
// starting at StringTableBase.
func (g *CodeGen) heapInitialValue() int {
	return g.nextStrAddr
}

func (g *CodeGen) emitArraySet(ex *IRArraySet) (ScalarKind, error) {
	if _, err := g.emitExpr(ex.Val); err != nil {
		return 0, err
	}
	g.push("rax")
	if _, err := g.emitExpr(ex.Idx); err != nil {
		return 0, err
	}
	g.w.Mov("ecx", "eax")
	if _, err := g.emitExpr(ex.Arr); err != nil {
		return 0, err
	}
	elemSize := scalar(irTypeKind(ex.Elem)).byteSize()
	g.w.Ins("imul", "ecx", fmt.Sprint(elemSize))
	g.w.Ins("add", "eax", "ecx")
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rbx")
	g.pop("rcx")
	if elemSize == 8 {
		g.w.Mov("qword ptr [rax]", "rcx")
	} else {
		g.w.Mov("dword ptr [rax]", "ecx")
	}
	return KindI32, nil
}

func (g *CodeGen) emitArrayGet(ex *IRArrayGet) (ScalarKind, error) {
	if _, err := g.emitExpr(ex.Idx); err != nil {
		return 0, err
	}
	g.w.Mov("ecx", "eax")
	if _, err := g.emitExpr(ex.Arr); err != nil {
		return 0, err
	}
	elemKind := irTypeKind(ex.Elem)
	elemSize := scalar(elemKind).byteSize()
	g.w.Ins("imul", "ecx", fmt.Sprint(elemSize))
	g.w.Ins("add", "eax", "ecx")
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rbx")
	if elemSize == 8 {
		g.w.Mov("rax", "qword ptr [rax]")
	} else {
		g.w.Mov("eax", "dword ptr [rax]")
	}
	return elemKind, nil
}

// emitStrLen/emitStrPtr treat a string value as a two-word structure in
// the prelude's string table: first word the pointer, second the length.
func (g *CodeGen) emitStrPtr(ex *IRStrPtr) (ScalarKind, error) {
	if _, err := g.emitExpr(ex.Expr); err != nil {
		return 0, err
	}
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rbx")
	g.w.Mov("eax", "dword ptr [rax]")
	return KindI32, nil
}

func (g *CodeGen) emitStrLen(ex *IRStrLen) (ScalarKind, error) {
	if _, err := g.emitExpr(ex.Expr); err != nil {
		return 0, err
	}
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rbx")
	g.w.Mov("eax", "dword ptr [rax+4]")
	return KindI32, nil
}
