package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkSingleObjectProducesExecutableHeader(t *testing.T) {
	text := []byte{0xb8, 0x07, 0x00, 0x00, 0x00, 0xc3} // mov eax, 7; ret
	data := buildObjectBytes(t, text, 0, []testSym{{name: "coatl_start", shndx: 1, value: 0}}, nil)

	exe, err := LinkSingleObject(data, "coatl_start")
	require.NoError(t, err)

	require.Equal(t, "\x7fELF", string(exe[:4]))
	require.Equal(t, byte(2), exe[4], "ELFCLASS64")
	require.Equal(t, byte(1), exe[5], "ELFDATA2LSB")

	entry := binary.LittleEndian.Uint64(exe[24:32])
	require.Equal(t, uint64(linkBase+linkTextOff), entry, "entry must point at the start of .text, symbol value 0")

	phoff := binary.LittleEndian.Uint64(exe[32:40])
	require.Equal(t, uint64(elfHdrSize), phoff)

	require.Equal(t, linkTextOff+len(text), len(exe), "output is headers padded to linkTextOff, then .text verbatim")

	gotText := exe[linkTextOff:]
	require.Equal(t, text, gotText)
}

func TestLinkSingleObjectProgramHeader(t *testing.T) {
	text := []byte{0xc3}
	data := buildObjectBytes(t, text, 4096, []testSym{{name: "coatl_start", shndx: 1, value: 0}}, nil)

	exe, err := LinkSingleObject(data, "coatl_start")
	require.NoError(t, err)

	ph := exe[elfHdrSize:]
	pType := binary.LittleEndian.Uint32(ph[0:4])
	pFlags := binary.LittleEndian.Uint32(ph[4:8])
	pVaddr := binary.LittleEndian.Uint64(ph[16:24])
	pFilesz := binary.LittleEndian.Uint64(ph[32:40])
	pMemsz := binary.LittleEndian.Uint64(ph[40:48])

	require.Equal(t, uint32(1), pType, "PT_LOAD")
	require.Equal(t, uint32(7), pFlags, "RWX")
	require.Equal(t, uint64(linkBase), pVaddr)
	require.Equal(t, uint64(linkTextOff+len(text)), pFilesz)
	require.True(t, pMemsz >= pFilesz, "memsz must cover .bss beyond filesz")
}

func TestLinkSingleObjectPatchesPC32Relocation(t *testing.T) {
	text := make([]byte, 8)
	// relocation at text offset 4, targeting the entry symbol itself
	// (value 0), addend 0: val = textVaddr - (textVaddr+4) = -4.
	data := buildObjectBytes(t, text, 0,
		[]testSym{{name: "coatl_start", shndx: 1, value: 0}},
		[]testRela{{offset: 4, symIdx: 1, relType: relPC32, addend: 0}})

	exe, err := LinkSingleObject(data, "coatl_start")
	require.NoError(t, err)

	patched := int32(binary.LittleEndian.Uint32(exe[linkTextOff+4 : linkTextOff+8]))
	require.Equal(t, int32(-4), patched)
}

func TestLinkSingleObjectRejectsOutOfRangeRelocation(t *testing.T) {
	text := make([]byte, 8)
	// an addend chosen so the relocation overflows a signed 32-bit field.
	data := buildObjectBytes(t, text, 0,
		[]testSym{{name: "coatl_start", shndx: 1, value: 0}},
		[]testRela{{offset: 4, symIdx: 1, relType: relPC32, addend: 1 << 40}})

	_, err := LinkSingleObject(data, "coatl_start")
	require.Error(t, err)
}

func TestLinkSingleObjectRejectsUndefinedEntry(t *testing.T) {
	text := []byte{0xc3}
	data := buildObjectBytes(t, text, 0, []testSym{{name: "coatl_start", shndx: 1, value: 0}}, nil)

	_, err := LinkSingleObject(data, "does_not_exist")
	require.Error(t, err)
}

func TestLinkSingleObjectRejectsUnsupportedRelocationType(t *testing.T) {
	text := make([]byte, 8)
	data := buildObjectBytes(t, text, 0,
		[]testSym{{name: "coatl_start", shndx: 1, value: 0}},
		[]testRela{{offset: 4, symIdx: 1, relType: 99, addend: 0}})

	_, err := LinkSingleObject(data, "coatl_start")
	require.Error(t, err)
}

func TestLinkSingleObjectBssSymbol(t *testing.T) {
	text := []byte{0xc3}
	data := buildObjectBytes(t, text, 16,
		[]testSym{
			{name: "coatl_start", shndx: 1, value: 0},
			{name: "counter", shndx: 2, value: 8},
		}, nil)

	obj, err := ParseObjectFile(data)
	require.NoError(t, err)

	textVaddr := uint64(linkBase + linkTextOff)
	bssVaddr := alignUp(textVaddr+uint64(len(obj.Text)), 16)

	addr, err := resolvedAddr(obj, obj.Syms[2], textVaddr, bssVaddr)
	require.NoError(t, err)
	require.Equal(t, bssVaddr+8, addr)
}
