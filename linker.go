package main

import (
	"encoding/binary"
	"fmt"
)

// LinkError reports a failure in the minimal static linker, kept distinct
// from CompileError since it never carries a source position: by the time
// the linker runs, the offending program has already been fully compiled
// to an object file.
type LinkError struct {
	Msg string
}

func (e *LinkError) Error() string { return e.Msg }

func linkErrf(format string, args ...interface{}) error {
	return &LinkError{Msg: fmt.Sprintf(format, args...)}
}

// Link layout constants, matching original_source/tools/link_x86_64_elf.py's
// link_single_obj exactly: a single PT_LOAD segment holding headers, .text
// and an immediately following .bss, loaded at a fixed low base address.
const (
	linkBase    = 0x400000
	linkTextOff = 0x1000
	linkAlign   = 0x1000
	phdrSize    = 56
)

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// resolvedAddr computes the runtime virtual address of a symbol defined in
// obj, the same four cases link_single_obj's sym_addr handles: undefined is
// an error, SHN_ABS symbols carry their address directly in st_value,
// .text-relative and .bss-relative symbols are rebased onto textVaddr and
// bssVaddr respectively.
func resolvedAddr(obj *ObjectFile, sym elfSymbol, textVaddr, bssVaddr uint64) (uint64, error) {
	switch int(sym.Shndx) {
	case shnUndef:
		return 0, linkErrf("undefined symbol: %s", cstr(obj.Strtab, sym.NameOff))
	case shnAbs:
		return sym.Value, nil
	case obj.TextIndex:
		return textVaddr + sym.Value, nil
	default:
		if obj.HasBss && int(sym.Shndx) == obj.BssIndex {
			return bssVaddr + sym.Value, nil
		}
		return 0, linkErrf("unsupported symbol section index: %d", sym.Shndx)
	}
}

// LinkSingleObject implements the static linker: one relocatable
// object in, one freestanding ELF64 executable out. There is exactly one
// PT_LOAD segment, no dynamic linking, no section headers in the output.
func LinkSingleObject(data []byte, entrySymbol string) ([]byte, error) {
	obj, err := ParseObjectFile(data)
	if err != nil {
		return nil, err
	}

	text := append([]byte(nil), obj.Text...)

	textVaddr := uint64(linkBase + linkTextOff)
	bssVaddr := alignUp(textVaddr+uint64(len(text)), 16)
	var bssSize uint64
	if obj.HasBss {
		bssSize = obj.Bss.Size
	}
	bssEnd := bssVaddr + bssSize

	for _, rel := range obj.Relocs {
		t := rel.relType()
		if t != relPC32 && t != relPLT32 {
			return nil, linkErrf("unsupported relocation type: %d", t)
		}
		symIdx := rel.symIndex()
		if int(symIdx) >= len(obj.Syms) {
			return nil, linkErrf("relocation references out-of-range symbol %d", symIdx)
		}
		sAddr, err := resolvedAddr(obj, obj.Syms[symIdx], textVaddr, bssVaddr)
		if err != nil {
			return nil, err
		}
		pAddr := textVaddr + rel.Offset
		val := int64(sAddr) + rel.Addend - int64(pAddr)
		if val < -0x80000000 || val > 0x7FFFFFFF {
			return nil, linkErrf("relocation overflow patching offset %d", rel.Offset)
		}
		if int(rel.Offset)+4 > len(text) {
			return nil, linkErrf("relocation offset %d out of bounds of .text", rel.Offset)
		}
		binary.LittleEndian.PutUint32(text[rel.Offset:rel.Offset+4], uint32(int32(val)))
	}

	var entryAddr uint64
	found := false
	for _, sym := range obj.Syms {
		if cstr(obj.Strtab, sym.NameOff) == entrySymbol {
			entryAddr, err = resolvedAddr(obj, sym, textVaddr, bssVaddr)
			if err != nil {
				return nil, err
			}
			found = true
			break
		}
	}
	if !found {
		return nil, linkErrf("entry symbol not found: %s", entrySymbol)
	}

	filesz := uint64(linkTextOff) + uint64(len(text))
	memsz := bssEnd - linkBase

	out := make([]byte, linkTextOff)
	writeELFHeader(out, entryAddr)
	writeProgramHeader(out[elfHdrSize:], memsz, filesz)
	out = append(out, text...)
	return out, nil
}

// elfBuf is a little-endian fixed-offset writer, one method per field
// width, used instead of scattering raw binary.LittleEndian.PutUintNN
// calls through the header writers below.
type elfBuf struct {
	b []byte
}

func (w elfBuf) u16(off int, v uint16) { binary.LittleEndian.PutUint16(w.b[off:], v) }
func (w elfBuf) u32(off int, v uint32) { binary.LittleEndian.PutUint32(w.b[off:], v) }
func (w elfBuf) u64(off int, v uint64) { binary.LittleEndian.PutUint64(w.b[off:], v) }
func (w elfBuf) byte(off int, v byte)  { w.b[off] = v }

// writeELFHeader writes the 64-byte Elf64_Ehdr for a non-relocatable,
// no-section-header x86-64 executable, matching link_single_obj's ehdr
// field order exactly (e_shoff/e_shentsize/e_shnum/e_shstrndx all zero:
// the output carries no section table, only the one program header).
func writeELFHeader(out []byte, entry uint64) {
	w := elfBuf{out}
	w.byte(0, 0x7f)
	w.byte(1, 'E')
	w.byte(2, 'L')
	w.byte(3, 'F')
	w.byte(4, 2) // ELFCLASS64
	w.byte(5, 1) // ELFDATA2LSB
	w.byte(6, 1) // EV_CURRENT
	w.u16(16, 2)  // e_type = ET_EXEC
	w.u16(18, 62) // e_machine = EM_X86_64
	w.u32(20, 1)  // e_version
	w.u64(24, entry)
	w.u64(32, elfHdrSize) // e_phoff
	w.u64(40, 0)          // e_shoff
	w.u32(48, 0)          // e_flags
	w.u16(52, elfHdrSize) // e_ehsize
	w.u16(54, phdrSize)   // e_phentsize
	w.u16(56, 1)          // e_phnum
	w.u16(58, 0)          // e_shentsize
	w.u16(60, 0)          // e_shnum
	w.u16(62, 0)          // e_shstrndx
}

// writeProgramHeader writes the single PT_LOAD Elf64_Phdr covering the
// whole image: RWX (flags=7), matching link_single_obj's phdr exactly.
func writeProgramHeader(out []byte, memsz, filesz uint64) {
	w := elfBuf{out}
	w.u32(0, 1) // p_type = PT_LOAD
	w.u32(4, 7) // p_flags = RWX
	w.u64(8, 0)
	w.u64(16, linkBase)
	w.u64(24, linkBase)
	w.u64(32, filesz)
	w.u64(40, memsz)
	w.u64(48, linkAlign)
}
