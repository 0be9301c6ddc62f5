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
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

type rawShdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Align     uint64
	EntrySize uint64
}

// Parse reads a 64-bit little-endian relocatable object from a raw byte
// buffer.  Malformed buffers, unsupported machine types and inconsistent
// table indices all yield an error; no partial object is ever returned.
func Parse(data []byte) (*Object, error) {
	if len(data) < ehdrSize {
		return nil, fmt.Errorf("buffer too small for ELF header (%d bytes)", len(data))
	}
	//
	if !bytes.Equal(data[:4], elfMagic) {
		return nil, fmt.Errorf("not an ELF file")
	}
	//
	if data[4] != 2 || data[5] != 1 {
		return nil, fmt.Errorf("only 64-bit little-endian objects are supported")
	}
	//
	o := NewObject()
	o.Type = ObjectType(binary.LittleEndian.Uint16(data[16:]))
	o.Machine = binary.LittleEndian.Uint16(data[18:])
	o.Version = binary.LittleEndian.Uint32(data[20:])
	o.Entry = binary.LittleEndian.Uint64(data[24:])
	o.Flags = binary.LittleEndian.Uint32(data[48:])
	//
	if !supportedMachine(o.Machine) {
		return nil, fmt.Errorf("unsupported machine type %d", o.Machine)
	}
	//
	var (
		shoff    = binary.LittleEndian.Uint64(data[40:])
		shnum    = int(binary.LittleEndian.Uint16(data[60:]))
		shstrndx = int(binary.LittleEndian.Uint16(data[62:]))
	)
	//
	if shnum == 0 {
		return nil, fmt.Errorf("object has no section headers")
	}
	//
	shdrs := make([]rawShdr, shnum)
	//
	for i := range shdrs {
		raw, err := slice(data, shoff+uint64(i)*shdrSize, shdrSize)
		if err != nil {
			return nil, fmt.Errorf("section header %d: %w", i, err)
		}
		//
		readShdr(raw, &shdrs[i])
	}
	//
	if shstrndx >= shnum {
		return nil, fmt.Errorf("section name table index %d out of range", shstrndx)
	}
	//
	shstrtab, err := slice(data, shdrs[shstrndx].Offset, shdrs[shstrndx].Size)
	if err != nil {
		return nil, fmt.Errorf("section name table: %w", err)
	}
	// Materialize the sections proper, excluding the tables the model
	// represents structurally.
	sections := make([]*Section, shnum)
	//
	for i := 1; i < shnum; i++ {
		h := &shdrs[i]
		//
		switch SectionType(h.Type) {
		case SHT_NULL, SHT_SYMTAB, SHT_STRTAB, SHT_RELA:
			continue
		}
		//
		name, err := getString(shstrtab, h.Name)
		if err != nil {
			return nil, fmt.Errorf("section %d name: %w", i, err)
		}
		//
		s := o.AddSection(name, SectionType(h.Type))
		s.Flags = SectionFlag(h.Flags)
		s.Alignment = max(h.Align, 1)
		//
		if SectionType(h.Type) == SHT_NOBITS {
			s.SetSize(h.Size)
		} else {
			raw, err := slice(data, h.Offset, h.Size)
			if err != nil {
				return nil, fmt.Errorf("section %s contents: %w", name, err)
			}
			//
			s.Contents = append([]byte(nil), raw...)
		}
		//
		sections[i] = s
	}
	//
	symbols, symtabIndex, err := parseSymbols(o, data, shdrs, sections)
	if err != nil {
		return nil, err
	}
	// Attach relocation tables to their target sections.
	for i := 1; i < shnum; i++ {
		h := &shdrs[i]
		if SectionType(h.Type) != SHT_RELA {
			continue
		}
		//
		if int(h.Link) != symtabIndex {
			return nil, fmt.Errorf("relocation section %d references unknown symbol table %d", i, h.Link)
		}
		//
		target := (*Section)(nil)
		if int(h.Info) < shnum {
			target = sections[h.Info]
		}
		//
		if target == nil {
			return nil, fmt.Errorf("relocation section %d targets invalid section %d", i, h.Info)
		}
		//
		raw, err := slice(data, h.Offset, h.Size)
		if err != nil {
			return nil, fmt.Errorf("relocation section %d contents: %w", i, err)
		}
		//
		for off := 0; off+relaSize <= len(raw); off += relaSize {
			var (
				offset = binary.LittleEndian.Uint64(raw[off:])
				info   = binary.LittleEndian.Uint64(raw[off+8:])
				addend = int64(binary.LittleEndian.Uint64(raw[off+16:]))
				symIdx = int(info >> 32)
			)
			//
			if symIdx >= len(symbols) {
				return nil, fmt.Errorf("relocation references symbol %d out of range", symIdx)
			}
			//
			target.AddRelocation(Relocation{
				Type:   uint32(info),
				Offset: offset,
				Addend: addend,
				Symbol: symbols[symIdx],
			})
		}
	}
	//
	return o, nil
}

// parseSymbols reads the first symbol table, returning the parsed symbols
// indexed as in the file (slot zero is nil) along with the table's section
// index.
func parseSymbols(o *Object, data []byte, shdrs []rawShdr, sections []*Section) ([]*Symbol, int, error) {
	symtabIndex := -1
	//
	for i := range shdrs {
		if SectionType(shdrs[i].Type) == SHT_SYMTAB {
			symtabIndex = i
			break
		}
	}
	//
	if symtabIndex < 0 {
		// No symbols is legal for a hand-assembled object.
		return []*Symbol{nil}, -1, nil
	}
	//
	h := &shdrs[symtabIndex]
	//
	if int(h.Link) >= len(shdrs) || SectionType(shdrs[h.Link].Type) != SHT_STRTAB {
		return nil, 0, fmt.Errorf("symbol table references invalid string table %d", h.Link)
	}
	//
	strtab, err := slice(data, shdrs[h.Link].Offset, shdrs[h.Link].Size)
	if err != nil {
		return nil, 0, fmt.Errorf("symbol string table: %w", err)
	}
	//
	raw, err := slice(data, h.Offset, h.Size)
	if err != nil {
		return nil, 0, fmt.Errorf("symbol table contents: %w", err)
	}
	//
	count := len(raw) / symSize
	symbols := make([]*Symbol, 1, count)
	//
	for i := 1; i < count; i++ {
		var (
			entry = raw[i*symSize:]
			//
			nameOff = binary.LittleEndian.Uint32(entry)
			info    = entry[4]
			shndx   = binary.LittleEndian.Uint16(entry[6:])
			value   = binary.LittleEndian.Uint64(entry[8:])
			size    = binary.LittleEndian.Uint64(entry[16:])
		)
		//
		name, err := getString(strtab, nameOff)
		if err != nil {
			return nil, 0, fmt.Errorf("symbol %d name: %w", i, err)
		}
		//
		sym := o.AddSymbol(name)
		sym.Binding = Binding(info >> 4)
		sym.Type = SymbolType(info & 0xf)
		//
		switch {
		case shndx == SHN_UNDEF:
			// leave undefined
		case shndx >= 0xff00:
			// Reserved indices (absolute etc): keep the value, no section.
			sym.Offset = value
		case int(shndx) >= len(shdrs):
			return nil, 0, fmt.Errorf("symbol %s references section %d out of range", name, shndx)
		case sections[shndx] != nil:
			// Loaded images record virtual addresses; the model keeps
			// section-relative offsets.
			sym.Define(sections[shndx], value-shdrs[shndx].Addr, uint32(size))
		}
		//
		symbols = append(symbols, sym)
	}
	//
	return symbols, symtabIndex, nil
}

func readShdr(raw []byte, out *rawShdr) {
	out.Name = binary.LittleEndian.Uint32(raw)
	out.Type = binary.LittleEndian.Uint32(raw[4:])
	out.Flags = binary.LittleEndian.Uint64(raw[8:])
	out.Addr = binary.LittleEndian.Uint64(raw[16:])
	out.Offset = binary.LittleEndian.Uint64(raw[24:])
	out.Size = binary.LittleEndian.Uint64(raw[32:])
	out.Link = binary.LittleEndian.Uint32(raw[40:])
	out.Info = binary.LittleEndian.Uint32(raw[44:])
	out.Align = binary.LittleEndian.Uint64(raw[48:])
	out.EntrySize = binary.LittleEndian.Uint64(raw[56:])
}

func supportedMachine(machine uint16) bool {
	switch machine {
	case EM_386, EM_ARM, EM_X86_64, EM_HEXAGON, EM_AARCH64, EM_RISCV:
		return true
	default:
		return false
	}
}

func slice(data []byte, offset, size uint64) ([]byte, error) {
	end := offset + size
	//
	if end < offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("range [%d, %d) outside buffer of %d bytes", offset, end, len(data))
	}
	//
	return data[offset:end], nil
}

func getString(strtab []byte, offset uint32) (string, error) {
	if int(offset) >= len(strtab) {
		return "", fmt.Errorf("string offset %d outside table of %d bytes", offset, len(strtab))
	}
	//
	end := int(offset)
	for end < len(strtab) && strtab[end] != 0 {
		end++
	}
	//
	return string(strtab[offset:end]), nil
}
