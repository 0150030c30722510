package main

import "testing"

func TestParseProgramScenarioA(t *testing.T) {
	mod, err := ParseProgram(`fn main()->i32 { return 7; }`)
	if err != nil {
		t.Fatalf("ParseProgram() error: %v", err)
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(mod.Functions))
	}
	fn := mod.Functions[0]
	if fn.Name != "main" || fn.RetType != "i32" {
		t.Errorf("got fn %s -> %s, want main -> i32", fn.Name, fn.RetType)
	}
	want := `(coatl_ir v1 (structs) (functions (fn main (params) (ret i32) (block (return (int 7))))))`
	if got := mod.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestParseProgramAddFunction(t *testing.T) {
	src := `fn add(a:i32,b:i32)->i32 { return a+b; } fn main()->i32 { return add(3,4); }`
	mod, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram() error: %v", err)
	}
	if len(mod.Functions) != 2 {
		t.Fatalf("got %d functions, want 2", len(mod.Functions))
	}
	add := mod.Functions[0]
	if len(add.Params) != 2 || add.Params[0].Name != "a" || add.Params[1].Name != "b" {
		t.Errorf("add params = %+v, want a, b", add.Params)
	}
}

func TestParseProgramWhileLoop(t *testing.T) {
	src := `fn main()->i32 { let n:i32=0; let i:i32=0; while(i<5){ n=n+i; i=i+1; } return n; }`
	mod, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram() error: %v", err)
	}
	rendered := mod.Functions[0].Body
	if len(rendered.Stmts) != 4 {
		t.Fatalf("got %d top-level statements, want 4 (2 lets, while, return)", len(rendered.Stmts))
	}
	if _, ok := rendered.Stmts[2].(*IRWhile); !ok {
		t.Errorf("statement 2 is %T, want *IRWhile", rendered.Stmts[2])
	}
}

func TestParseProgramStructScalarization(t *testing.T) {
	src := `struct P { x: i32, y: i32 } fn mk(a:i32,b:i32)->P { return P{x:a,y:b}; } fn main()->i32 { let p:P=mk(2,3); return p.x+p.y; }`
	mod, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram() error: %v", err)
	}
	// mk splits into two companions, one per field.
	var names []string
	for _, fn := range mod.Functions {
		names = append(names, fn.Name)
	}
	wantNames := map[string]bool{"mk__ret__x": true, "mk__ret__y": true, "main": true}
	if len(mod.Functions) != 3 {
		t.Fatalf("got %d functions %v, want 3", len(mod.Functions), names)
	}
	for _, n := range names {
		if !wantNames[n] {
			t.Errorf("unexpected function name %q", n)
		}
	}
	var main *IRFunc
	for _, fn := range mod.Functions {
		if fn.Name == "main" {
			main = fn
		}
	}
	if main == nil {
		t.Fatal("main function not found")
	}
	// p:P=mk(2,3) must lower to two scalar lets, p__x and p__y.
	if len(main.Body.Stmts) != 3 {
		t.Fatalf("got %d statements in main, want 3 (2 lets + return)", len(main.Body.Stmts))
	}
	let0, ok := main.Body.Stmts[0].(*IRLet)
	if !ok || let0.Name != "p__x" {
		t.Errorf("statement 0 = %+v, want let p__x", main.Body.Stmts[0])
	}
	let1, ok := main.Body.Stmts[1].(*IRLet)
	if !ok || let1.Name != "p__y" {
		t.Errorf("statement 1 = %+v, want let p__y", main.Body.Stmts[1])
	}
}

func TestParseProgramArrayLiteral(t *testing.T) {
	src := `fn main()->i32 { let a:[i32;3]=[0;3]; a[0]=1; a[1]=2; a[2]=4; return a[0]+a[1]+a[2]; }`
	mod, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram() error: %v", err)
	}
	fn := mod.Functions[0]
	alloc, ok := fn.Body.Stmts[0].(*IRLet)
	if !ok {
		t.Fatalf("statement 0 = %T, want *IRLet", fn.Body.Stmts[0])
	}
	if _, ok := alloc.Expr.(*IRArrayAlloc); !ok {
		t.Errorf("let expr = %T, want *IRArrayAlloc", alloc.Expr)
	}
	// three a[i]=v statements follow the allocation, matched as IRArraySet.
	for i := 1; i <= 3; i++ {
		stmt, ok := fn.Body.Stmts[i].(*IRExprStmt)
		if !ok {
			t.Fatalf("statement %d = %T, want *IRExprStmt", i, fn.Body.Stmts[i])
		}
		if _, ok := stmt.Expr.(*IRArraySet); !ok {
			t.Errorf("statement %d expr = %T, want *IRArraySet", i, stmt.Expr)
		}
	}
}

func TestParseProgramArrayLiteralSizeMismatch(t *testing.T) {
	src := `fn main()->i32 { let a:[i32;3]=[0;2]; return 0; }`
	_, err := ParseProgram(src)
	if err == nil {
		t.Fatal("expected error for array literal size mismatch")
	}
	ce, ok := err.(*CompileError)
	if !ok || ce.Code != ErrParserArraySize {
		t.Errorf("error = %v, want ErrParserArraySize", err)
	}
}

func TestParseProgramUndefinedIdent(t *testing.T) {
	src := `fn main()->i32 { return missing; }`
	_, err := ParseProgram(src)
	if err == nil {
		t.Fatal("expected error for undefined identifier")
	}
	ce, ok := err.(*CompileError)
	if !ok || ce.Code != ErrSemanticUnknownIdent {
		t.Errorf("error = %v, want ErrSemanticUnknownIdent", err)
	}
}

func TestParseProgramStructFieldMismatch(t *testing.T) {
	src := `struct P { x: i32, y: i32 } fn main()->i32 { let p:P=P{x:1,z:2}; return 0; }`
	_, err := ParseProgram(src)
	if err == nil {
		t.Fatal("expected error for unknown struct field")
	}
	ce, ok := err.(*CompileError)
	if !ok || ce.Code != ErrParserFieldMismatch {
		t.Errorf("error = %v, want ErrParserFieldMismatch", err)
	}
}

func TestParseProgramComparisonBinaryOmitsI32Type(t *testing.T) {
	mod, err := ParseProgram(`fn main()->i32 { if (1<2) { return 1; } return 0; }`)
	if err != nil {
		t.Fatalf("ParseProgram() error: %v", err)
	}
	ifNode, ok := mod.Functions[0].Body.Stmts[0].(*IRIf)
	if !ok {
		t.Fatalf("statement 0 = %T, want *IRIf", mod.Functions[0].Body.Stmts[0])
	}
	bin, ok := ifNode.Cond.(*IRBinary)
	if !ok {
		t.Fatalf("cond = %T, want *IRBinary", ifNode.Cond)
	}
	if bin.Op != "lt" || bin.Type != "" {
		t.Errorf("binary = %+v, want op lt, type \"\"", bin)
	}
}

func TestScalarizedNameAndRetFieldFuncName(t *testing.T) {
	if got := ScalarizedName("p", "x"); got != "p__x" {
		t.Errorf("ScalarizedName = %q, want p__x", got)
	}
	if got := RetFieldFuncName("mk", "x"); got != "mk__ret__x" {
		t.Errorf("RetFieldFuncName = %q, want mk__ret__x", got)
	}
}
