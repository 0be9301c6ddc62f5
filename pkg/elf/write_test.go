// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Relocation types understood by the test linker.
const (
	relAbs32 = 2 // patch site takes the 32-bit address of the symbol
	relCall  = 3 // call through the GOT, trampolined while undefined
)

// testLinker is a minimal architecture backend: one GOT word per symbol and
// a fixed-size 16-byte PLT trampoline.
type testLinker struct {
	gotEntries map[*Symbol]uint64
	pltInits   int
}

func newTestLinker() *testLinker {
	return &testLinker{gotEntries: make(map[*Symbol]uint64)}
}

func (l *testLinker) AddGotEntry(got *Section, sym *Symbol) uint64 {
	if off, ok := l.gotEntries[sym]; ok {
		return off
	}
	//
	off := got.AppendWord(0)
	got.AddRelocation(Relocation{Type: relAbs32, Offset: off, Symbol: sym})
	l.gotEntries[sym] = off
	//
	return off
}

func (l *testLinker) NeedsPltEntry(reloc *Relocation) bool {
	return reloc.Type == relCall
}

func (l *testLinker) InitPltSection(plt *Section, got *Section) {
	l.pltInits++
	plt.Append(make([]byte, 16))
}

func (l *testLinker) AddPltEntry(sym *Symbol, plt *Section, got *Section, gotSym *Symbol) *Symbol {
	off := plt.Append(make([]byte, 16))
	//
	extern := &Symbol{Name: sym.Name + "@plt", Binding: sym.Binding, Type: sym.Type}
	sym.Define(plt, off, 16)
	//
	return extern
}

func (l *testLinker) Relocate(fixupOffset uint64, fixupBytes []byte, typ uint32, symOffset uint64,
	addend int64, got *Section) {
	switch typ {
	case relAbs32:
		binary.LittleEndian.PutUint32(fixupBytes, uint32(int64(symOffset)+addend))
	case relCall:
		// Calls go through the GOT; the entry offset is all the trampoline
		// needs.
	}
}

// buildObject assembles a small but complete relocatable object: code, data,
// zero-fill and a defined global per section.
func buildObject() (*Object, *Symbol) {
	o := NewObject()
	o.Type = ET_REL
	o.Machine = EM_HEXAGON
	o.Version = 1
	//
	text := o.AddSection(".text", SHT_PROGBITS)
	text.Flags = SHF_ALLOC | SHF_EXECINSTR
	text.Alignment = 16
	text.Append(make([]byte, 32))
	//
	data := o.AddSection(".data", SHT_PROGBITS)
	data.Flags = SHF_ALLOC | SHF_WRITE
	data.Alignment = 8
	data.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	//
	bss := o.AddSection(".bss", SHT_NOBITS)
	bss.Flags = SHF_ALLOC | SHF_WRITE
	bss.Alignment = 8
	bss.SetSize(64)
	//
	entry := o.AddSymbol("pipeline_entry")
	entry.Binding = STB_GLOBAL
	entry.Type = STT_FUNC
	entry.Define(text, 0, 32)
	//
	state := o.AddSymbol("pipeline_state")
	state.Binding = STB_LOCAL
	state.Type = STT_OBJECT
	state.Define(data, 4, 4)
	//
	return o, entry
}

func TestWriteSharedObject_RoundTrip(t *testing.T) {
	o, _ := buildObject()
	//
	image, err := WriteSharedObject(o, newTestLinker())
	assert.NoError(t, err)
	//
	parsed, err := Parse(image)
	assert.NoError(t, err)
	// Shared objects are always emitted as ET_DYN
	assert.Equal(t, ET_DYN, parsed.Type)
	assert.Equal(t, uint16(EM_HEXAGON), parsed.Machine)
	// Section contents survive the round trip
	text := parsed.FindSection(".text")
	if assert.NotNil(t, text) {
		assert.Equal(t, o.FindSection(".text").Contents, text.Contents)
	}
	//
	data := parsed.FindSection(".data")
	if assert.NotNil(t, data) {
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data.Contents)
	}
	// Zero-fill keeps its declared size without contents
	bss := parsed.FindSection(".bss")
	if assert.NotNil(t, bss) {
		assert.Equal(t, uint64(64), bss.Size())
		assert.Empty(t, bss.Contents)
	}
	// Symbols keep their section-relative offsets
	entry := parsed.FindSymbol("pipeline_entry")
	if assert.NotNil(t, entry) {
		assert.True(t, entry.IsDefined())
		assert.True(t, entry.Section == text)
		assert.Equal(t, uint64(0), entry.Offset)
	}
	//
	state := parsed.FindSymbol("pipeline_state")
	if assert.NotNil(t, state) {
		assert.Equal(t, STB_LOCAL, state.Binding)
		assert.Equal(t, uint64(4), state.Offset)
	}
	// The writer synthesized the GOT and its base symbol
	assert.NotNil(t, parsed.FindSymbol(GotSymbolName))
}

func TestWriteSharedObject_GotDeduplicated(t *testing.T) {
	o, entry := buildObject()
	text := o.FindSection(".text")
	// Two calls to the same defined symbol share one GOT entry.
	text.AddRelocation(Relocation{Type: relCall, Offset: 0, Symbol: entry})
	text.AddRelocation(Relocation{Type: relCall, Offset: 8, Symbol: entry})
	//
	linker := newTestLinker()
	_, err := WriteSharedObject(o, linker)
	assert.NoError(t, err)
	//
	got := o.FindSection(".got")
	if assert.NotNil(t, got) {
		assert.Equal(t, uint64(8), got.Size())
	}
	// The symbol is defined, hence no trampoline
	assert.Nil(t, o.FindSection(".plt"))
	assert.Equal(t, 0, linker.pltInits)
}

func TestWriteSharedObject_PltEntry(t *testing.T) {
	o, _ := buildObject()
	text := o.FindSection(".text")
	//
	external := o.AddSymbol("halide_do_par_for")
	external.Binding = STB_GLOBAL
	external.Type = STT_FUNC
	// Two call sites, one trampoline.
	text.AddRelocation(Relocation{Type: relCall, Offset: 0, Symbol: external})
	text.AddRelocation(Relocation{Type: relCall, Offset: 8, Symbol: external})
	//
	linker := newTestLinker()
	image, err := WriteSharedObject(o, linker)
	assert.NoError(t, err)
	// PLT holds its header plus one entry
	plt := o.FindSection(".plt")
	if assert.NotNil(t, plt) {
		assert.Equal(t, uint64(32), plt.Size())
	}
	//
	assert.Equal(t, 1, linker.pltInits)
	// The call target now resolves inside the image
	assert.True(t, external.IsDefined())
	assert.True(t, external.Section == plt)
	// A fresh symbol carries the load-time resolution
	assert.NotNil(t, o.FindSymbol("halide_do_par_for@plt"))
	// The result is still a well-formed image
	_, err = Parse(image)
	assert.NoError(t, err)
}

func TestWriteSharedObject_AbsoluteRelocation(t *testing.T) {
	o, entry := buildObject()
	text := o.FindSection(".text")
	text.AddRelocation(Relocation{Type: relAbs32, Offset: 12, Symbol: entry, Addend: 4})
	//
	_, err := WriteSharedObject(o, newTestLinker())
	assert.NoError(t, err)
	// The patch site holds the virtual address of the symbol plus addend.
	patched := binary.LittleEndian.Uint32(text.Contents[12:])
	//
	var textAddr uint64
	placements, _ := layout(o)
	for _, p := range placements {
		if p.section == text {
			textAddr = p.vaddr
		}
	}
	//
	assert.Equal(t, uint32(textAddr+4), patched)
}

func TestLayout(t *testing.T) {
	o, _ := buildObject()
	debug := o.AddSection(".debug_info", SHT_PROGBITS)
	debug.Append([]byte{0xff})
	//
	placements, phnum := layout(o)
	assert.Equal(t, 2, phnum)
	//
	byName := make(map[string]placement)
	for _, p := range placements {
		byName[p.section.Name] = p
	}
	// Code lands beyond the headers, on its alignment
	text := byName[".text"]
	assert.True(t, text.loadable)
	assert.Equal(t, uint64(0), text.vaddr%16)
	assert.True(t, text.vaddr >= uint64(ehdrSize+2*phdrSize))
	// Writable data starts on its own page
	data := byName[".data"]
	assert.Equal(t, uint64(0), data.vaddr%pageSize)
	// Zero-fill consumes address space but no file bytes
	bss := byName[".bss"]
	assert.Equal(t, uint64(0), bss.fileSize)
	assert.True(t, bss.vaddr >= data.vaddr+data.fileSize)
	// Non-allocatable sections are not loaded
	dbg := byName[".debug_info"]
	assert.False(t, dbg.loadable)
	assert.Equal(t, uint64(0), dbg.vaddr)
	// File offset equals virtual address for loadable sections
	for _, p := range []placement{text, data} {
		assert.Equal(t, p.fileOff, p.vaddr)
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte{0x7f, 'E', 'L', 'F'})
	assert.Error(t, err)
	//
	_, err = Parse(make([]byte, 128))
	assert.Error(t, err)
	// 32-bit class is rejected
	o, _ := buildObject()
	image, err := WriteSharedObject(o, newTestLinker())
	assert.NoError(t, err)
	//
	bad := append([]byte(nil), image...)
	bad[4] = 1
	_, err = Parse(bad)
	assert.Error(t, err)
	// Unsupported machine is rejected
	bad = append([]byte(nil), image...)
	bad[18] = 0xff
	bad[19] = 0x7f
	_, err = Parse(bad)
	assert.Error(t, err)
}
