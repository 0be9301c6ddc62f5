package elf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindSection_FirstMatch(t *testing.T) {
	o := NewObject()
	a := o.AddSection(".text", SHT_PROGBITS)
	b := o.AddSection(".text", SHT_PROGBITS)
	//
	assert.True(t, o.FindSection(".text") == a)
	assert.True(t, b != a)
	assert.Nil(t, o.FindSection(".data"))
}

func TestFindSymbol_FirstMatch(t *testing.T) {
	o := NewObject()
	a := o.AddSymbol("f")
	o.AddSymbol("f")
	//
	assert.True(t, o.FindSymbol("f") == a)
	assert.Nil(t, o.FindSymbol("g"))
}

func TestEraseSection(t *testing.T) {
	o := NewObject()
	a := o.AddSection(".a", SHT_PROGBITS)
	b := o.AddSection(".b", SHT_PROGBITS)
	//
	o.EraseSection(a)
	assert.Equal(t, 1, len(o.Sections))
	assert.True(t, o.Sections[0] == b)
}

func TestAddRelocationSection(t *testing.T) {
	o := NewObject()
	text := o.AddSection(".text", SHT_PROGBITS)
	rela := o.AddRelocationSection(text)
	//
	assert.Equal(t, ".rela.text", rela.Name)
	assert.Equal(t, SHT_RELA, rela.Type)
	assert.True(t, rela.RelocatedSection == text)
}

func TestMergeSections(t *testing.T) {
	o := NewObject()
	//
	a := o.AddSection(".text.a", SHT_PROGBITS)
	a.Flags = SHF_ALLOC | SHF_EXECINSTR
	a.Alignment = 4
	a.Append([]byte{1, 2, 3, 4, 5})
	//
	b := o.AddSection(".text.b", SHT_PROGBITS)
	b.Flags = SHF_ALLOC | SHF_EXECINSTR
	b.Alignment = 16
	b.Append([]byte{6, 7, 8})
	//
	symA := o.AddSymbol("a")
	symA.Define(a, 0, 4)
	symB := o.AddSymbol("b")
	symB.Define(b, 2, 1)
	//
	b.AddRelocation(Relocation{Type: 1, Offset: 1, Symbol: symA})
	//
	merged, err := o.MergeSections([]*Section{a, b})
	assert.NoError(t, err)
	assert.True(t, merged == a)
	// Absorbed sections disappear from the object
	assert.Equal(t, 1, len(o.Sections))
	// Contents of b start at the next 16-byte boundary
	assert.Equal(t, uint64(16+3), merged.Size())
	assert.Equal(t, byte(6), merged.Contents[16])
	// Alignment becomes the max over all inputs
	assert.Equal(t, uint64(16), merged.Alignment)
	// Symbols and relocations shift with their section
	assert.True(t, symB.Section == merged)
	assert.Equal(t, uint64(16+2), symB.Offset)
	assert.Equal(t, uint64(16+1), merged.Relocations[0].Offset)
	// Symbols in the first section are untouched
	assert.Equal(t, uint64(0), symA.Offset)
}

func TestMergeTextSections(t *testing.T) {
	o := NewObject()
	//
	a := o.AddSection(".text.f", SHT_PROGBITS)
	a.Flags = SHF_ALLOC | SHF_EXECINSTR
	a.Append([]byte{1})
	//
	data := o.AddSection(".data", SHT_PROGBITS)
	data.Flags = SHF_ALLOC | SHF_WRITE
	data.Append([]byte{9})
	//
	b := o.AddSection(".text.g", SHT_PROGBITS)
	b.Flags = SHF_ALLOC | SHF_EXECINSTR
	b.Append([]byte{2})
	//
	text, err := o.MergeTextSections()
	assert.NoError(t, err)
	assert.Equal(t, ".text", text.Name)
	// The data section survives untouched
	assert.True(t, o.FindSection(".data") == data)
	assert.Equal(t, 2, len(o.Sections))
}

func TestSectionSize(t *testing.T) {
	s := NewSection(".bss", SHT_NOBITS)
	assert.Equal(t, uint64(0), s.Size())
	//
	s.SetSize(128)
	assert.Empty(t, s.Contents)
	assert.Equal(t, uint64(128), s.Size())
	//
	text := NewSection(".text", SHT_PROGBITS)
	off := text.Append([]byte{1, 2, 3})
	assert.Equal(t, uint64(0), off)
	//
	off = text.AppendWord(0xdeadbeef)
	assert.Equal(t, uint64(3), off)
	assert.Equal(t, uint64(11), text.Size())
}
