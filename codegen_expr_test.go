package main

import (
	"strings"
	"testing"
)

func TestEmitExprIntLiteral(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	kind, err := g.emitExpr(&IRInt{Value: "7"})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if kind != KindI32 {
		t.Errorf("kind = %v, want KindI32", kind)
	}
	if !strings.Contains(g.w.String(), "mov eax, 7") {
		t.Errorf("emitted %q, want to contain mov eax, 7", g.w.String())
	}
}

func TestEmitExprFloatLiteralEncodesBits(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	kind, err := g.emitExpr(&IRFloatF32{Value: "1.5"})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if kind != KindF32 {
		t.Errorf("kind = %v, want KindF32", kind)
	}
	// 1.5f is 0x3fc00000.
	if !strings.Contains(g.w.String(), "0x3fc00000") {
		t.Errorf("emitted %q, want bit pattern 0x3fc00000", g.w.String())
	}
}

func TestEmitIntBinaryComparisonReturnsBool(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	kind, err := g.emitExpr(&IRBinary{Op: "lt", LHS: &IRInt{Value: "1"}, RHS: &IRInt{Value: "2"}})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if kind != KindBool {
		t.Errorf("kind = %v, want KindBool", kind)
	}
	asm := g.w.String()
	for _, want := range []string{"cmp eax, ecx", "setl al", "movzx eax, al"} {
		if !strings.Contains(asm, want) {
			t.Errorf("emitted assembly missing %q:\n%s", want, asm)
		}
	}
}

func TestEmitIntBinaryI64UsesWideRegisters(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	kind, err := g.emitExpr(&IRBinary{Op: "add", Type: "i64", LHS: &IRIntI64{Value: "1"}, RHS: &IRIntI64{Value: "2"}})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if kind != KindI64 {
		t.Errorf("kind = %v, want KindI64", kind)
	}
	if !strings.Contains(g.w.String(), "add rax, rcx") {
		t.Errorf("emitted %q, want 64-bit add", g.w.String())
	}
}

func TestEmitFloatBinaryUsesUnsignedSetcc(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	kind, err := g.emitExpr(&IRBinary{Op: "lt", Type: "f64", LHS: &IRFloatF64{Value: "1.0"}, RHS: &IRFloatF64{Value: "2.0"}})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if kind != KindBool {
		t.Errorf("kind = %v, want KindBool", kind)
	}
	asm := g.w.String()
	if !strings.Contains(asm, "ucomisd xmm0, xmm1") {
		t.Errorf("emitted assembly missing ucomisd:\n%s", asm)
	}
	if !strings.Contains(asm, "setb al") {
		t.Errorf("emitted assembly missing unsigned-condition setb for lt:\n%s", asm)
	}
}

func TestExprIsFloatClassification(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{"x": KindF64}}
	g.retTypes = map[string]ScalarKind{"mk": KindF32}

	cases := []struct {
		name string
		expr IRNode
		want bool
	}{
		{"float literal", &IRFloatF32{Value: "1.0"}, true},
		{"int literal", &IRInt{Value: "1"}, false},
		{"float ident", &IRIdent{Name: "x"}, true},
		{"float-returning call", &IRCall{Fn: "mk"}, true},
		{"unknown call defaults i32", &IRCall{Fn: "unknown"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := g.exprIsFloat(c.expr); got != c.want {
				t.Errorf("exprIsFloat(%T) = %v, want %v", c.expr, got, c.want)
			}
		})
	}
}

func TestEmitCallOddStackArgsAligns(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	g.retTypes = map[string]ScalarKind{}
	// 7 integer args: 6 in registers, 1 overflow (odd stackArgs -> padding).
	args := make([]IRNode, 7)
	for i := range args {
		args[i] = &IRInt{Value: "1"}
	}
	_, err := g.emitCall(&IRCall{Fn: "f", Args: args})
	if err != nil {
		t.Fatalf("emitCall() error: %v", err)
	}
	asm := g.w.String()
	if !strings.Contains(asm, "sub rsp, 8") {
		t.Errorf("expected alignment padding for odd stackArgs count, got:\n%s", asm)
	}
	if !strings.Contains(asm, "call f") {
		t.Errorf("expected call f, got:\n%s", asm)
	}
	if !strings.Contains(asm, "sub rsp, 56") {
		t.Errorf("expected a 7-slot overflow region (56 bytes), got:\n%s", asm)
	}
	if !strings.Contains(asm, "qword ptr [rsp+48]") {
		t.Errorf("expected the overflow argument written at position 6 (offset 48), got:\n%s", asm)
	}
	if !strings.Contains(asm, "add rsp, 64") {
		t.Errorf("expected cleanup of the full padded overflow region (64 bytes), got:\n%s", asm)
	}
}

func TestEmitCallNineIntArgsPopulatesSixRegistersAndThreeStackSlots(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	g.retTypes = map[string]ScalarKind{}
	args := make([]IRNode, 9)
	for i := range args {
		args[i] = &IRInt{Value: "1"}
	}
	_, err := g.emitCall(&IRCall{Fn: "__path_open", Args: args})
	if err != nil {
		t.Fatalf("emitCall() error: %v", err)
	}
	asm := g.w.String()
	for _, want := range []string{
		"qword ptr [rsp+48]",
		"qword ptr [rsp+56]",
		"qword ptr [rsp+64]",
		"mov rdi, rax",
		"mov r9, rax",
		"call __path_open",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("emitted assembly missing %q:\n%s", want, asm)
		}
	}
	if g.pushDepth != 0 {
		t.Errorf("pushDepth = %d after call completes, want 0", g.pushDepth)
	}
}

func TestEmitCallFloatReturnTransfersFromXmm0(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	g.retTypes = map[string]ScalarKind{"mkf": KindF64}
	kind, err := g.emitCall(&IRCall{Fn: "mkf"})
	if err != nil {
		t.Fatalf("emitCall() error: %v", err)
	}
	if kind != KindF64 {
		t.Errorf("kind = %v, want KindF64", kind)
	}
	if !strings.Contains(g.w.String(), "movq rax, xmm0") {
		t.Errorf("expected float result transfer, got:\n%s", g.w.String())
	}
}

func TestEmitArrayAllocUsesLazyHeapPointer(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	_, err := g.emitExpr(&IRArrayAlloc{Elem: "i32", N: 3})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	asm := g.w.String()
	for _, want := range []string{
		"[rip+__coatl_mem]",
		"dword ptr [rbx+4096]",
		"add ecx, 12",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("emitted assembly missing %q:\n%s", want, asm)
		}
	}
}

func TestEmitArraySetAndGetUseElemSize(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{"a": -8}, types: map[string]ScalarKind{"a": KindI32}}
	_, err := g.emitExpr(&IRArraySet{
		Elem: "i32",
		Arr:  &IRIdent{Name: "a"},
		Idx:  &IRInt{Value: "0"},
		Val:  &IRInt{Value: "5"},
	})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if !strings.Contains(g.w.String(), "imul ecx, 4") {
		t.Errorf("expected i32 element size 4, got:\n%s", g.w.String())
	}

	g2 := NewCodeGen()
	g2.frame = &Frame{offsets: map[string]int{"a": -8}, types: map[string]ScalarKind{"a": KindI32}}
	kind, err := g2.emitExpr(&IRArrayGet{Elem: "i64", Arr: &IRIdent{Name: "a"}, Idx: &IRInt{Value: "0"}})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if kind != KindI64 {
		t.Errorf("kind = %v, want KindI64", kind)
	}
	if !strings.Contains(g2.w.String(), "imul ecx, 8") {
		t.Errorf("expected i64 element size 8, got:\n%s", g2.w.String())
	}
}

func TestEmitStrLenReadsLengthWordAfterPointer(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	_, err := g.emitExpr(&IRStrLen{Expr: &IRStringLit{Value: "hi"}})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if !strings.Contains(g.w.String(), "dword ptr [rax+4]") {
		t.Errorf("expected length word read at +4, got:\n%s", g.w.String())
	}
}

func TestEmitStrPtrReadsPointerWord(t *testing.T) {
	g := NewCodeGen()
	g.frame = &Frame{offsets: map[string]int{}, types: map[string]ScalarKind{}}
	_, err := g.emitExpr(&IRStrPtr{Expr: &IRStringLit{Value: "hi"}})
	if err != nil {
		t.Fatalf("emitExpr() error: %v", err)
	}
	if !strings.Contains(g.w.String(), "dword ptr [rax]") {
		t.Errorf("expected pointer word read at +0, got:\n%s", g.w.String())
	}
}
