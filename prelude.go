package main

import "fmt"

// emitPrelude writes the fixed set of runtime routines every output
// carries, grounded on flapc's syscall_x86_64.go convention
// of one Go function assembling a whole `mov rax, SYS_xxx; ...; syscall`
// routine through the shared emitter.
func (g *CodeGen) emitPrelude() {
	g.emitInitMemory()
	g.emitMemLoad()
	g.emitMemLoad8()
	g.emitMemStore()
	g.emitMemStore8()
	g.emitFdWrite()
	g.emitFdRead()
	g.emitFdClose()
	g.emitPathOpen()
	g.emitTTYGetMode()
	g.emitTTYSetRaw()
	g.emitTTYRestore()
	g.emitCoatlStart()
}

// emitInitMemory writes every interned string literal into its assigned
// offset in __coatl_mem under an idempotency guard word. Every function
// calls it after its prologue; the guard makes every call after the first
// a no-op.
func (g *CodeGen) emitInitMemory() {
	g.w.Label("__coatl_init_memory")
	g.w.Push("rbp")
	g.w.Mov("rbp", "rsp")
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Mov("eax", fmt.Sprintf("dword ptr [rbx+%d]", MemInitedGuardOff))
	g.w.Test("eax", "eax")
	done := g.newLabel("meminit_done")
	g.w.Jz(".Lmeminit_go")
	g.w.Jmp(done)
	g.w.Label(".Lmeminit_go")

	for _, s := range g.stringOrder {
		addr := g.strings[s]
		dataAddr := addr + strHeaderSize
		g.w.Comment(fmt.Sprintf("intern %q at %d (header), data at %d", s, addr, dataAddr))
		g.w.Mov(fmt.Sprintf("dword ptr [rbx+%d]", addr), fmt.Sprint(dataAddr))
		g.w.Mov(fmt.Sprintf("dword ptr [rbx+%d]", addr+4), fmt.Sprint(len(s)))
		for i := 0; i < len(s); i++ {
			g.w.Mov("al", fmt.Sprintf("%d", s[i]))
			g.w.Mov(fmt.Sprintf("byte ptr [rbx+%d]", dataAddr+i), "al")
		}
		g.w.Mov("byte ptr "+fmt.Sprintf("[rbx+%d]", dataAddr+len(s)), "0")
	}

	g.w.Mov("eax", "1")
	g.w.Mov(fmt.Sprintf("dword ptr [rbx+%d]", MemInitedGuardOff), "eax")
	g.w.Label(done)
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()
}

// emitMemLoad/emitMemLoad8/emitMemStore/emitMemStore8 are the four
// linear-memory accessors: load/store a dword or byte at an
// i32 offset within __coatl_mem. Each takes the offset in rdi (and, for
// stores, the value in rsi), returning the loaded word in rax.
func (g *CodeGen) emitMemLoad() {
	g.w.Label("__mem_load")
	g.w.Lea("rax", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rdi")
	g.w.Mov("eax", "dword ptr [rax]")
	g.w.Ret()
}

func (g *CodeGen) emitMemLoad8() {
	g.w.Label("__mem_load8")
	g.w.Lea("rax", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rdi")
	g.w.Ins("movzx", "eax", "byte ptr [rax]")
	g.w.Ret()
}

func (g *CodeGen) emitMemStore() {
	g.w.Label("__mem_store")
	g.w.Lea("rax", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rdi")
	g.w.Mov("dword ptr [rax]", "esi")
	g.w.Ret()
}

func (g *CodeGen) emitMemStore8() {
	g.w.Label("__mem_store8")
	g.w.Lea("rax", "[rip+__coatl_mem]")
	g.w.Ins("add", "rax", "rdi")
	g.w.Mov("byte ptr [rax]", "sil")
	g.w.Ret()
}

// emitFdWrite iterates an iovec array in linear memory and invokes write
// (syscall 1) per entry, accumulating bytes written.
// Signature: __fd_write(fd, iov_base, iov_cnt, nwritten_out) -> i32.
func (g *CodeGen) emitFdWrite() {
	g.w.Label("__fd_write")
	g.w.Push("rbp")
	g.w.Mov("rbp", "rsp")
	g.w.Ins("sub", "rsp", "32")
	g.w.Mov("dword ptr [rbp-4]", "edi")  // fd
	g.w.Mov("dword ptr [rbp-8]", "esi")  // iov_base offset
	g.w.Mov("dword ptr [rbp-12]", "edx") // iov_cnt
	g.w.Mov("dword ptr [rbp-16]", "ecx") // nwritten_out offset
	g.w.Mov("dword ptr [rbp-20]", "0")   // i
	g.w.Mov("dword ptr [rbp-24]", "0")   // total

	loop := g.newLabel("fdwrite_loop")
	end := g.newLabel("fdwrite_end")
	g.w.Label(loop)
	g.w.Mov("eax", "dword ptr [rbp-20]")
	g.w.Cmp("eax", "dword ptr [rbp-12]")
	g.w.Ins("jge", end)

	// iov entry is 8 bytes: ptr(4) + len(4); base address = iov_base + i*8.
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Mov("ecx", "dword ptr [rbp-8]")
	g.w.Mov("edx", "dword ptr [rbp-20]")
	g.w.Ins("imul", "edx", "8")
	g.w.Ins("add", "ecx", "edx")
	g.w.Mov("rax", "rbx")
	g.w.Ins("add", "rax", "rcx")
	g.w.Mov("ecx", "dword ptr [rax]")   // ptr offset
	g.w.Mov("edx", "dword ptr [rax+4]") // len
	g.w.Mov("rsi", "rbx")
	g.w.Ins("add", "rsi", "rcx")
	g.w.Mov("edi", "dword ptr [rbp-4]")
	g.w.Mov("rax", "1") // SYS_write
	g.w.Ins("syscall")
	g.w.Ins("cmp", "rax", "0")
	g.w.Ins("jl", ".Lfdwrite_err")
	g.w.Mov("ecx", "dword ptr [rbp-24]")
	g.w.Ins("add", "ecx", "eax")
	g.w.Mov("dword ptr [rbp-24]", "ecx")
	g.w.Mov("eax", "dword ptr [rbp-20]")
	g.w.Ins("inc", "eax")
	g.w.Mov("dword ptr [rbp-20]", "eax")
	g.w.Jmp(loop)

	g.w.Label(".Lfdwrite_err")
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()

	g.w.Label(end)
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Mov("ecx", "dword ptr [rbp-16]")
	g.w.Mov("eax", "dword ptr [rbp-24]")
	g.w.Mov("rdx", "rbx")
	g.w.Ins("add", "rdx", "rcx")
	g.w.Mov("dword ptr [rdx]", "eax")
	g.w.Mov("eax", "0")
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()
}

// emitFdRead is symmetric with emitFdWrite using read (syscall 0); a
// short read terminates the loop.
func (g *CodeGen) emitFdRead() {
	g.w.Label("__fd_read")
	g.w.Push("rbp")
	g.w.Mov("rbp", "rsp")
	g.w.Ins("sub", "rsp", "32")
	g.w.Mov("dword ptr [rbp-4]", "edi")
	g.w.Mov("dword ptr [rbp-8]", "esi")
	g.w.Mov("dword ptr [rbp-12]", "edx")
	g.w.Mov("dword ptr [rbp-16]", "ecx")
	g.w.Mov("dword ptr [rbp-20]", "0")
	g.w.Mov("dword ptr [rbp-24]", "0")

	loop := g.newLabel("fdread_loop")
	end := g.newLabel("fdread_end")
	g.w.Label(loop)
	g.w.Mov("eax", "dword ptr [rbp-20]")
	g.w.Cmp("eax", "dword ptr [rbp-12]")
	g.w.Ins("jge", end)

	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Mov("ecx", "dword ptr [rbp-8]")
	g.w.Mov("edx", "dword ptr [rbp-20]")
	g.w.Ins("imul", "edx", "8")
	g.w.Ins("add", "ecx", "edx")
	g.w.Mov("rax", "rbx")
	g.w.Ins("add", "rax", "rcx")
	g.w.Mov("ecx", "dword ptr [rax]")
	g.w.Mov("edx", "dword ptr [rax+4]")
	g.w.Mov("rsi", "rbx")
	g.w.Ins("add", "rsi", "rcx")
	g.w.Mov("edi", "dword ptr [rbp-4]")
	g.w.Mov("rax", "0") // SYS_read
	g.w.Ins("syscall")
	g.w.Ins("cmp", "rax", "0")
	g.w.Ins("jl", ".Lfdread_err")
	g.w.Mov("ecx", "dword ptr [rbp-24]")
	g.w.Ins("add", "ecx", "eax")
	g.w.Mov("dword ptr [rbp-24]", "ecx")
	// short read terminates the loop early.
	g.w.Cmp("rax", "rdx")
	g.w.Ins("jl", end)
	g.w.Mov("eax", "dword ptr [rbp-20]")
	g.w.Ins("inc", "eax")
	g.w.Mov("dword ptr [rbp-20]", "eax")
	g.w.Jmp(loop)

	g.w.Label(".Lfdread_err")
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()

	g.w.Label(end)
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Mov("ecx", "dword ptr [rbp-16]")
	g.w.Mov("eax", "dword ptr [rbp-24]")
	g.w.Mov("rdx", "rbx")
	g.w.Ins("add", "rdx", "rcx")
	g.w.Mov("dword ptr [rdx]", "eax")
	g.w.Mov("eax", "0")
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()
}

// emitFdClose wraps close (syscall 3): __fd_close(fd) -> 0 or -errno.
func (g *CodeGen) emitFdClose() {
	g.w.Label("__fd_close")
	g.w.Mov("rax", "3")
	g.w.Ins("syscall")
	g.w.Ret()
}

// emitPathOpen copies the path into a stack buffer, NUL-terminates it,
// remaps dirfd==3 to AT_FDCWD, derives O_* flags from bit 0 of oflags,
// and invokes openat (syscall 257), returning -EINVAL(22) for a path
// length outside [0, 4095).
func (g *CodeGen) emitPathOpen() {
	g.w.Label("__path_open")
	g.w.Push("rbp")
	g.w.Mov("rbp", "rsp")
	g.w.Ins("sub", "rsp", "4112") // 4096-byte path buffer + scratch

	// args: rdi=dirfd, rsi=dirflags, rdx=path_ptr, rcx=path_len,
	// r8=oflags, r9=rights (inh/fdflags/fd_out arrive on the stack per
	// the System V overflow convention once >6 integer args are used).
	g.w.Mov("dword ptr [rbp-4104]", "edi") // dirfd
	g.w.Mov("dword ptr [rbp-4108]", "r8d") // oflags
	g.w.Mov("eax", "ecx")                  // path_len
	g.w.Cmp("eax", "0")
	g.w.Ins("jl", ".Lpathopen_einval")
	g.w.Cmp("eax", "4095")
	g.w.Ins("jge", ".Lpathopen_einval")

	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rbx", "rdx") // rbx = &__coatl_mem[path_ptr]
	g.w.Mov("edx", "0")

	copyLoop := g.newLabel("pathopen_copy")
	copyEnd := g.newLabel("pathopen_copyend")
	g.w.Label(copyLoop)
	g.w.Cmp("edx", "eax")
	g.w.Ins("jge", copyEnd)
	g.w.Mov("cl", "byte ptr [rbx+rdx]")
	g.w.Ins("mov", "byte ptr [rbp-4096+rdx]", "cl")
	g.w.Ins("inc", "edx")
	g.w.Jmp(copyLoop)
	g.w.Label(copyEnd)
	g.w.Ins("mov", "byte ptr [rbp-4096+rdx]", "0")

	g.w.Mov("edi", "dword ptr [rbp-4104]")
	g.w.Cmp("edi", "3")
	g.w.Ins("jne", ".Lpathopen_nofixup")
	g.w.Mov("edi", "-100") // AT_FDCWD
	g.w.Label(".Lpathopen_nofixup")

	g.w.Lea("rsi", "[rbp-4096]")
	g.w.Mov("eax", "dword ptr [rbp-4108]")
	g.w.Ins("and", "eax", "1")
	g.w.Cmp("eax", "0")
	g.w.Ins("jz", ".Lpathopen_rdonly")
	g.w.Mov("edx", "577") // O_WRONLY|O_CREAT|O_TRUNC
	g.w.Jmp(".Lpathopen_haveflags")
	g.w.Label(".Lpathopen_rdonly")
	g.w.Mov("edx", "0")
	g.w.Label(".Lpathopen_haveflags")
	g.w.Mov("r10", "420") // mode 0644
	g.w.Mov("rax", "257") // SYS_openat
	g.w.Ins("syscall")
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()

	g.w.Label(".Lpathopen_einval")
	g.w.Mov("eax", "-22")
	g.w.Mov("rsp", "rbp")
	g.w.Pop("rbp")
	g.w.Ret()
}

// emitTTYGetMode/emitTTYSetRaw/emitTTYRestore manipulate a termios image
// in linear memory via ioctl (syscall 16) with TCGETS/TCSETS.
func (g *CodeGen) emitTTYGetMode() {
	g.w.Label("__tty_get_mode")
	g.w.Mov("rdx", "rsi") // termios buffer offset
	g.w.Lea("rax", "[rip+__coatl_mem]")
	g.w.Ins("add", "rdx", "rax")
	g.w.Mov("rsi", "0x5401") // TCGETS
	g.w.Mov("rax", "16")     // SYS_ioctl
	g.w.Ins("syscall")
	g.w.Ret()
}

func (g *CodeGen) emitTTYSetRaw() {
	g.w.Label("__tty_set_raw")
	// clears IXON/ICANON/ECHO in the termios image at offset rdi, then
	// applies it to fd 0 with TCSETS. VMIN/VTIME in the image are left
	// as they are.
	g.w.Lea("rbx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rbx", "rdi") // termios buffer address
	g.w.Mov("eax", "dword ptr [rbx]")
	g.w.Ins("and", "eax", "0xFFFFFBFF") // ~IXON
	g.w.Mov("dword ptr [rbx]", "eax")
	g.w.Mov("eax", "dword ptr [rbx+12]")
	g.w.Ins("and", "eax", "0xFFFFFFF5") // ~(ICANON|ECHO)
	g.w.Mov("dword ptr [rbx+12]", "eax")
	g.w.Mov("rdx", "rbx")
	g.w.Mov("rsi", "0x5402") // TCSETS
	g.w.Mov("edi", "0")      // fd (caller's responsibility via a wrapper)
	g.w.Mov("rax", "16")
	g.w.Ins("syscall")
	g.w.Ret()
}

func (g *CodeGen) emitTTYRestore() {
	g.w.Label("__tty_restore")
	g.w.Lea("rdx", "[rip+__coatl_mem]")
	g.w.Ins("add", "rdx", "rsi")
	g.w.Mov("rsi", "0x5402") // TCSETS
	g.w.Mov("rax", "16")
	g.w.Ins("syscall")
	g.w.Ret()
}

// emitCoatlStart is the process entry point: call main, move its result
// into edi, exit (syscall 60).
func (g *CodeGen) emitCoatlStart() {
	g.w.Label(DefaultEntrySymbol)
	g.w.Call("main")
	g.w.Mov("edi", "eax")
	g.w.Mov("rax", "60")
	g.w.Ins("syscall")
}
