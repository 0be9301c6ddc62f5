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
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// GotSymbolName names the base of the global offset table.
const GotSymbolName = "_GLOBAL_OFFSET_TABLE_"

// placement records where a section lands in the output image.  A virtual
// address of zero denotes a non-loadable section.
type placement struct {
	section  *Section
	fileOff  uint64
	vaddr    uint64
	fileSize uint64
	loadable bool
}

// WriteSharedObject lays the object out as a position-independent,
// dynamically loadable image and returns its bytes.  Every relocation is
// resolved through the given Linker; symbols requiring indirection get GOT
// entries (deduplicated per symbol) and, where the architecture demands it,
// PLT trampolines before any patching happens.  The object is mutated: GOT
// and PLT sections are added as needed, and trampolined symbols become
// defined.
func WriteSharedObject(o *Object, linker Linker) ([]byte, error) {
	got := o.FindSection(".got")
	//
	if got == nil {
		got = o.AddSection(".got", SHT_PROGBITS)
		got.Flags = SHF_ALLOC | SHF_WRITE
		got.Alignment = 8
	}
	//
	gotSym := o.FindSymbol(GotSymbolName)
	//
	if gotSym == nil {
		gotSym = o.AddSymbol(GotSymbolName)
		gotSym.Binding = STB_LOCAL
		gotSym.Type = STT_OBJECT
		gotSym.Define(got, 0, 0)
	}
	//
	if err := synthesizeIndirection(o, linker, got, gotSym); err != nil {
		return nil, err
	}
	// All GOT/PLT growth is complete, so the image layout can be fixed.
	placements, phnum := layout(o)
	//
	if err := applyRelocations(linker, got, placements); err != nil {
		return nil, err
	}
	//
	return emit(o, placements, phnum)
}

// synthesizeIndirection gives every symbol targeted by an
// indirection-requiring relocation its GOT entry and, while the symbol
// remains undefined, a PLT trampoline.  Both happen at most once per symbol:
// GOT deduplication is the Linker's contract, PLT deduplication is enforced
// here.
func synthesizeIndirection(o *Object, linker Linker, got *Section, gotSym *Symbol) error {
	var (
		plt  *Section
		done = make(map[*Symbol]bool)
		// The PLT pass appends sections (.plt) and relocations; snapshot the
		// section list to keep iteration well defined.
		sections = append([]*Section(nil), o.Sections...)
	)
	//
	for _, sec := range sections {
		if sec.RelocatedSection != nil {
			continue
		}
		//
		for i := range sec.Relocations {
			r := &sec.Relocations[i]
			//
			if r.Symbol == nil || !linker.NeedsPltEntry(r) {
				continue
			}
			//
			linker.AddGotEntry(got, r.Symbol)
			//
			if r.Symbol.IsDefined() || done[r.Symbol] {
				continue
			}
			//
			done[r.Symbol] = true
			//
			if plt == nil {
				plt = o.FindSection(".plt")
				//
				if plt == nil {
					plt = o.AddSection(".plt", SHT_PROGBITS)
					plt.Flags = SHF_ALLOC | SHF_EXECINSTR
					plt.Alignment = 16
				}
				//
				linker.InitPltSection(plt, got)
			}
			// A nil result means the architecture resolves the symbol
			// through the GOT alone.
			if extern := linker.AddPltEntry(r.Symbol, plt, got, gotSym); extern != nil {
				o.Symbols = append(o.Symbols, extern)
				//
				if !r.Symbol.IsDefined() {
					return fmt.Errorf("PLT entry left symbol %s undefined", r.Symbol.Name)
				}
				//
				log.Debugf("added PLT entry for %s via %s", r.Symbol.Name, extern.Name)
			}
		}
	}
	//
	return nil
}

// layout assigns file offsets and virtual addresses.  Allocatable sections
// are grouped into at most two loadable segments, read-execute then
// read-write, each page aligned; zero-fill sections take address space but
// no file bytes; non-allocatable sections follow at address zero.
func layout(o *Object) ([]placement, int) {
	var (
		rx, rw, bss, rest []*Section
		placements        []placement
	)
	//
	for _, s := range o.Sections {
		switch {
		case s.Type == SHT_NULL || s.RelocatedSection != nil:
			// Regenerated at serialization time.
		case s.Type == SHT_NOBITS && s.IsAlloc():
			bss = append(bss, s)
		case s.IsAlloc() && s.IsWritable():
			rw = append(rw, s)
		case s.IsAlloc():
			rx = append(rx, s)
		default:
			rest = append(rest, s)
		}
	}
	//
	var (
		phnum  = segmentCount(rx, rw, bss)
		cursor = uint64(ehdrSize + phnum*phdrSize)
	)
	// Read-execute group (file offset equals virtual address throughout).
	for _, s := range rx {
		cursor = align(cursor, max(s.Alignment, 1))
		placements = append(placements, placement{s, cursor, cursor, s.Size(), true})
		cursor += s.Size()
	}
	// Read-write group starts on its own page.
	if len(rw) > 0 || len(bss) > 0 {
		cursor = align(cursor, pageSize)
	}
	//
	for _, s := range rw {
		cursor = align(cursor, max(s.Alignment, 1))
		placements = append(placements, placement{s, cursor, cursor, s.Size(), true})
		cursor += s.Size()
	}
	// Zero-fill sections take address space only.
	vcursor := cursor
	//
	for _, s := range bss {
		vcursor = align(vcursor, max(s.Alignment, 1))
		placements = append(placements, placement{s, cursor, vcursor, 0, true})
		vcursor += s.Size()
	}
	//
	for _, s := range rest {
		cursor = align(cursor, max(s.Alignment, 1))
		placements = append(placements, placement{s, cursor, 0, s.Size(), false})
		cursor += s.Size()
	}
	//
	return placements, phnum
}

func segmentCount(rx, rw, bss []*Section) int {
	var n int
	//
	if len(rx) > 0 {
		n++
	}
	//
	if len(rw) > 0 || len(bss) > 0 {
		n++
	}
	//
	return n
}

// applyRelocations drives the Linker over every relocation of every placed
// section.  Unresolved symbols patch as address zero, to be fixed by the
// loader.
func applyRelocations(linker Linker, got *Section, placements []placement) error {
	addresses := make(map[*Section]uint64)
	for _, p := range placements {
		addresses[p.section] = p.vaddr
	}
	//
	for _, p := range placements {
		sec := p.section
		// Relocations may still be appended to the GOT by arch-specific
		// patching, hence iteration by index.
		for i := 0; i < len(sec.Relocations); i++ {
			r := &sec.Relocations[i]
			//
			if r.Offset >= uint64(len(sec.Contents)) {
				return fmt.Errorf("relocation offset %#x outside contents of %s", r.Offset, sec.Name)
			}
			//
			var symOffset uint64
			//
			if r.Symbol != nil && r.Symbol.IsDefined() {
				base, placed := addresses[r.Symbol.Section]
				if !placed {
					return fmt.Errorf("relocation in %s references symbol %s in unplaced section",
						sec.Name, r.Symbol.Name)
				}
				//
				symOffset = base + r.Symbol.Offset
			}
			//
			linker.Relocate(p.vaddr+r.Offset, sec.Contents[r.Offset:], r.Type, symOffset, r.Addend, got)
		}
	}
	//
	return nil
}

// emit renders the final image: header, program headers, section data,
// symbol and string tables and the section header table.
func emit(o *Object, placements []placement, phnum int) ([]byte, error) {
	var (
		buf      bytes.Buffer
		shstrtab = stringTable{data: []byte{0}}
		strtab   = stringTable{data: []byte{0}}
	)
	// Symbol table orders locals before globals, as the format requires.
	symbols := append([]*Symbol(nil), o.Symbols...)
	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].Binding == STB_LOCAL && symbols[j].Binding != STB_LOCAL
	})
	//
	numLocals := 0
	for _, s := range symbols {
		if s.Binding == STB_LOCAL {
			numLocals++
		}
	}
	// Section header order: null, placed sections, symtab, strtab, shstrtab.
	shndx := make(map[*Section]int)
	for i, p := range placements {
		shndx[p.section] = i + 1
	}
	//
	addresses := make(map[*Section]uint64)
	for _, p := range placements {
		addresses[p.section] = p.vaddr
	}
	//
	symtab := encodeSymbols(symbols, &strtab, shndx, addresses)
	//
	var (
		symtabIndex   = len(placements) + 1
		strtabIndex   = len(placements) + 2
		shstrtabIndex = len(placements) + 3
		shnum         = len(placements) + 4
	)
	// Section data ends where the trailing tables begin.
	end := uint64(ehdrSize + phnum*phdrSize)
	for _, p := range placements {
		if p.fileOff+p.fileSize > end {
			end = p.fileOff + p.fileSize
		}
	}
	//
	var (
		symtabOff   = align(end, 8)
		strtabOff   = symtabOff + uint64(len(symtab))
		shstrtabOff = strtabOff + uint64(len(strtab.data))
	)
	// Names go into the section name table in header order.
	names := make([]uint32, shnum)
	for i, p := range placements {
		names[i+1] = shstrtab.intern(p.section.Name)
	}
	//
	names[symtabIndex] = shstrtab.intern(".symtab")
	names[strtabIndex] = shstrtab.intern(".strtab")
	names[shstrtabIndex] = shstrtab.intern(".shstrtab")
	//
	shoff := align(shstrtabOff+uint64(len(shstrtab.data)), 8)
	//
	writeEhdr(&buf, o, phnum, shnum, shstrtabIndex, shoff)
	writePhdrs(&buf, placements, phnum)
	// Section contents, padded into place.
	for _, p := range placements {
		pad(&buf, p.fileOff)
		buf.Write(p.section.Contents)
		// Zero-fill up to the declared size for sections with file presence.
		for n := uint64(len(p.section.Contents)); n < p.fileSize; n++ {
			buf.WriteByte(0)
		}
	}
	//
	pad(&buf, symtabOff)
	buf.Write(symtab)
	buf.Write(strtab.data)
	buf.Write(shstrtab.data)
	pad(&buf, shoff)
	// Section header table.
	writeShdr(&buf, rawShdr{}) // null entry
	//
	for i, p := range placements {
		s := p.section
		//
		writeShdr(&buf, rawShdr{
			Name:   names[i+1],
			Type:   uint32(s.Type),
			Flags:  uint64(s.Flags),
			Addr:   p.vaddr,
			Offset: p.fileOff,
			Size:   s.Size(),
			Align:  max(s.Alignment, 1),
		})
	}
	//
	writeShdr(&buf, rawShdr{
		Name:      names[symtabIndex],
		Type:      uint32(SHT_SYMTAB),
		Offset:    symtabOff,
		Size:      uint64(len(symtab)),
		Link:      uint32(strtabIndex),
		Info:      uint32(numLocals + 1),
		Align:     8,
		EntrySize: symSize,
	})
	writeShdr(&buf, rawShdr{
		Name:   names[strtabIndex],
		Type:   uint32(SHT_STRTAB),
		Offset: strtabOff,
		Size:   uint64(len(strtab.data)),
		Align:  1,
	})
	writeShdr(&buf, rawShdr{
		Name:   names[shstrtabIndex],
		Type:   uint32(SHT_STRTAB),
		Offset: shstrtabOff,
		Size:   uint64(len(shstrtab.data)),
		Align:  1,
	})
	//
	return buf.Bytes(), nil
}

func encodeSymbols(symbols []*Symbol, strtab *stringTable, shndx map[*Section]int, addresses map[*Section]uint64) []byte {
	out := make([]byte, symSize, symSize*(len(symbols)+1))
	//
	for _, s := range symbols {
		var (
			entry [symSize]byte
			ndx   = SHN_UNDEF
			value = s.Offset
		)
		//
		if s.IsDefined() {
			if i, ok := shndx[s.Section]; ok {
				ndx = uint16(i)
				value += addresses[s.Section]
			}
		}
		//
		binary.LittleEndian.PutUint32(entry[0:], strtab.intern(s.Name))
		entry[4] = byte(s.Binding)<<4 | byte(s.Type)&0xf
		binary.LittleEndian.PutUint16(entry[6:], ndx)
		binary.LittleEndian.PutUint64(entry[8:], value)
		binary.LittleEndian.PutUint64(entry[16:], uint64(s.Size))
		//
		out = append(out, entry[:]...)
	}
	//
	return out
}

func writeEhdr(buf *bytes.Buffer, o *Object, phnum, shnum, shstrndx int, shoff uint64) {
	var hdr [ehdrSize]byte
	//
	copy(hdr[:], elfMagic)
	hdr[4] = 2 // ELFCLASS64
	hdr[5] = 1 // ELFDATA2LSB
	hdr[6] = 1 // EV_CURRENT
	//
	binary.LittleEndian.PutUint16(hdr[16:], uint16(ET_DYN))
	binary.LittleEndian.PutUint16(hdr[18:], o.Machine)
	binary.LittleEndian.PutUint32(hdr[20:], 1)
	binary.LittleEndian.PutUint64(hdr[24:], o.Entry)
	//
	if phnum > 0 {
		binary.LittleEndian.PutUint64(hdr[32:], ehdrSize)
	}
	//
	binary.LittleEndian.PutUint64(hdr[40:], shoff)
	binary.LittleEndian.PutUint32(hdr[48:], o.Flags)
	binary.LittleEndian.PutUint16(hdr[52:], ehdrSize)
	binary.LittleEndian.PutUint16(hdr[54:], phdrSize)
	binary.LittleEndian.PutUint16(hdr[56:], uint16(phnum))
	binary.LittleEndian.PutUint16(hdr[58:], shdrSize)
	binary.LittleEndian.PutUint16(hdr[60:], uint16(shnum))
	binary.LittleEndian.PutUint16(hdr[62:], uint16(shstrndx))
	//
	buf.Write(hdr[:])
}

// writePhdrs emits one PT_LOAD per populated flag group.
func writePhdrs(buf *bytes.Buffer, placements []placement, phnum int) {
	if phnum == 0 {
		return
	}
	//
	type segment struct {
		flags          uint32
		off, end, vend uint64
		seen           bool
	}
	//
	var rx, rw segment
	//
	rx.flags = 0x5 // PF_R | PF_X
	rw.flags = 0x6 // PF_R | PF_W
	// The read-execute segment covers the headers as loaders expect.
	rx.off = 0
	//
	for _, p := range placements {
		if !p.loadable {
			continue
		}
		//
		seg := &rx
		if p.section.IsWritable() || p.section.Type == SHT_NOBITS {
			seg = &rw
		}
		//
		if !seg.seen {
			seg.seen = true
			//
			if seg == &rw {
				seg.off = p.fileOff
			}
		}
		//
		if e := p.fileOff + p.fileSize; e > seg.end {
			seg.end = e
		}
		//
		if v := p.vaddr + p.section.Size(); v > seg.vend {
			seg.vend = v
		}
	}
	//
	for _, seg := range []*segment{&rx, &rw} {
		if !seg.seen {
			continue
		}
		//
		var hdr [phdrSize]byte
		//
		binary.LittleEndian.PutUint32(hdr[0:], 1) // PT_LOAD
		binary.LittleEndian.PutUint32(hdr[4:], seg.flags)
		binary.LittleEndian.PutUint64(hdr[8:], seg.off)
		binary.LittleEndian.PutUint64(hdr[16:], seg.off) // vaddr
		binary.LittleEndian.PutUint64(hdr[24:], seg.off) // paddr
		binary.LittleEndian.PutUint64(hdr[32:], seg.end-seg.off)
		binary.LittleEndian.PutUint64(hdr[40:], seg.vend-seg.off)
		binary.LittleEndian.PutUint64(hdr[48:], pageSize)
		//
		buf.Write(hdr[:])
	}
}

func writeShdr(buf *bytes.Buffer, h rawShdr) {
	var raw [shdrSize]byte
	//
	binary.LittleEndian.PutUint32(raw[0:], h.Name)
	binary.LittleEndian.PutUint32(raw[4:], h.Type)
	binary.LittleEndian.PutUint64(raw[8:], h.Flags)
	binary.LittleEndian.PutUint64(raw[16:], h.Addr)
	binary.LittleEndian.PutUint64(raw[24:], h.Offset)
	binary.LittleEndian.PutUint64(raw[32:], h.Size)
	binary.LittleEndian.PutUint32(raw[40:], h.Link)
	binary.LittleEndian.PutUint32(raw[44:], h.Info)
	binary.LittleEndian.PutUint64(raw[48:], h.Align)
	binary.LittleEndian.PutUint64(raw[56:], h.EntrySize)
	//
	buf.Write(raw[:])
}

func pad(buf *bytes.Buffer, to uint64) {
	if uint64(buf.Len()) > to {
		panic(fmt.Sprintf("layout overrun: at %#x, expected at most %#x", buf.Len(), to))
	}
	//
	for uint64(buf.Len()) < to {
		buf.WriteByte(0)
	}
}

func align(v, to uint64) uint64 {
	return (v + to - 1) &^ (to - 1)
}

// stringTable accumulates a classic NUL-separated string table, reusing the
// offset of a previously interned string.
type stringTable struct {
	data    []byte
	offsets map[string]uint32
}

func (t *stringTable) intern(s string) uint32 {
	if s == "" {
		return 0
	}
	//
	if t.offsets == nil {
		t.offsets = make(map[string]uint32)
	}
	//
	if off, ok := t.offsets[s]; ok {
		return off
	}
	//
	off := uint32(len(t.data))
	t.offsets[s] = off
	t.data = append(t.data, s...)
	t.data = append(t.data, 0)
	//
	return off
}
