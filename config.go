package main

import "github.com/xyproto/env/v2"

// VerboseMode gates the fmt.Fprintf(os.Stderr, …) tracing scattered through
// the codegen and linker stages, the same role flapc's own VerboseMode
// global plays in elf_complete.go and default.go.
var VerboseMode = env.Bool("COATLC_VERBOSE", false)

// DefaultArenaSize is the size in bytes of the __coatl_mem linear-memory
// .bss region. Overridable for testing small-footprint
// builds without touching the generated assembly by hand.
var DefaultArenaSize = env.Int("COATLC_ARENA_SIZE", 1<<20)

// DefaultEntrySymbol is the linker's default entry point.
// COATLC_ENTRY and the linker's -entry flag both set the same field.
var DefaultEntrySymbol = env.Str("COATLC_ENTRY", "coatl_start")

// KeepTempFiles disables cleanup of intermediate .ir/.s/.o files produced
// by the `build` subcommand, for debugging a failing pipeline stage.
var KeepTempFiles = env.Bool("COATLC_KEEP_TEMP", false)

// HeapPointerAddr is the compile-time-known address of the bump-allocator
// heap pointer.
const HeapPointerAddr = 4096

// StringTableBase is the first address the string interning table is laid
// out at. Chosen, as in original_source's prototype frontends, to sit well
// clear of the heap pointer's own 4-byte slot at HeapPointerAddr.
const StringTableBase = 65536

// MemInitedGuardOff is the offset of __coatl_init_memory's idempotency
// guard word, placed immediately after the heap pointer's own slot so
// neither overlaps the other.
const MemInitedGuardOff = HeapPointerAddr + 4

