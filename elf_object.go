package main

import (
	"encoding/binary"
	"fmt"
)

// Section/relocation type constants from the ELF64 spec, named identically
// to original_source/tools/link_x86_64_elf.py's module-level constants.
const (
	shtSymtab = 2
	shtStrtab = 3
	shtRela   = 4

	relPC32  = 2
	relPLT32 = 4

	shnUndef = 0
	shnAbs   = 0xFFF1
)

// elfSectionHeader mirrors original_source's SEC_HDR_FMT
// ("<IIQQQQIIQQ") field for field: one Elf64_Shdr.
type elfSectionHeader struct {
	NameOff   uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// elfSymbol mirrors SYM_FMT ("<IBBHQQ"): one Elf64_Sym.
type elfSymbol struct {
	NameOff uint32
	Info    uint8
	Other   uint8
	Shndx   uint16
	Value   uint64
	Size    uint64
}

// elfRela mirrors RELA_FMT ("<QQq"): one Elf64_Rela.
type elfRela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (r elfRela) symIndex() uint32 { return uint32(r.Info >> 32) }
func (r elfRela) relType() uint32  { return uint32(r.Info) }

// ObjectFile is the parsed form of a single ELF64 relocatable object, the
// input to the linker. Parsing uses encoding/binary directly over the
// section/symbol/relocation tables rather than stdlib debug/elf, see
// DESIGN.md for why.
type ObjectFile struct {
	Text      []byte
	Bss       elfSectionHeader
	HasBss    bool
	Syms      []elfSymbol
	Strtab    []byte
	Relocs    []elfRela
	TextIndex int
	BssIndex  int
}

func readU16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func readU32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func readU64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

func readSectionHeader(b []byte, off int) elfSectionHeader {
	return elfSectionHeader{
		NameOff:   readU32(b, off+0),
		Type:      readU32(b, off+4),
		Flags:     readU64(b, off+8),
		Addr:      readU64(b, off+16),
		Offset:    readU64(b, off+24),
		Size:      readU64(b, off+32),
		Link:      readU32(b, off+40),
		Info:      readU32(b, off+44),
		AddrAlign: readU64(b, off+48),
		EntSize:   readU64(b, off+56),
	}
}

func readSymbol(b []byte, off int) elfSymbol {
	return elfSymbol{
		NameOff: readU32(b, off+0),
		Info:    b[off+4],
		Other:   b[off+5],
		Shndx:   readU16(b, off+6),
		Value:   readU64(b, off+8),
		Size:    readU64(b, off+16),
	}
}

func readRela(b []byte, off int) elfRela {
	return elfRela{
		Offset: readU64(b, off+0),
		Info:   readU64(b, off+8),
		Addend: int64(readU64(b, off+16)),
	}
}

func cstr(b []byte, off uint32) string {
	end := int(off)
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[off:end])
}

const elfHdrSize = 64

// ParseObjectFile reads a single ELF64 relocatable object:
// required sections .text/.symtab/.strtab, optional .bss/.rela.text.
func ParseObjectFile(data []byte) (*ObjectFile, error) {
	if len(data) < elfHdrSize || string(data[:4]) != "\x7fELF" {
		return nil, fmt.Errorf("not an ELF object")
	}
	if data[4] != 2 || data[5] != 1 {
		return nil, fmt.Errorf("unsupported ELF object format: need ELFCLASS64/ELFDATA2LSB")
	}
	shoff := readU64(data, 40)
	shentsize := readU16(data, 58)
	shnum := readU16(data, 60)
	shstrndx := readU16(data, 62)

	headers := make([]elfSectionHeader, shnum)
	for i := 0; i < int(shnum); i++ {
		headers[i] = readSectionHeader(data, int(shoff)+i*int(shentsize))
	}

	shstr := headers[shstrndx]
	shstrData := data[shstr.Offset : shstr.Offset+shstr.Size]

	byName := map[string]int{}
	for idx, sh := range headers {
		byName[cstr(shstrData, sh.NameOff)] = idx
	}

	textIdx, ok := byName[".text"]
	if !ok {
		return nil, fmt.Errorf("object missing required section .text")
	}
	symIdx, ok := byName[".symtab"]
	if !ok {
		return nil, fmt.Errorf("object missing required section .symtab")
	}
	strIdx, ok := byName[".strtab"]
	if !ok {
		return nil, fmt.Errorf("object missing required section .strtab")
	}

	textSh := headers[textIdx]
	obj := &ObjectFile{
		Text:      append([]byte(nil), data[textSh.Offset:textSh.Offset+textSh.Size]...),
		TextIndex: textIdx,
		BssIndex:  -1,
	}

	if idx, ok := byName[".bss"]; ok {
		obj.HasBss = true
		obj.Bss = headers[idx]
		obj.BssIndex = idx
	}

	symSh := headers[symIdx]
	strSh := headers[strIdx]
	obj.Strtab = data[strSh.Offset : strSh.Offset+strSh.Size]

	symCount := int(symSh.Size / symSh.EntSize)
	for i := 0; i < symCount; i++ {
		obj.Syms = append(obj.Syms, readSymbol(data, int(symSh.Offset)+i*int(symSh.EntSize)))
	}

	if idx, ok := byName[".rela.text"]; ok {
		relaSh := headers[idx]
		relaCount := int(relaSh.Size / relaSh.EntSize)
		for i := 0; i < relaCount; i++ {
			obj.Relocs = append(obj.Relocs, readRela(data, int(relaSh.Offset)+i*int(relaSh.EntSize)))
		}
	}

	return obj, nil
}
