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

import "encoding/binary"

// Symbol is an entry of the object's symbol table.  Symbols are owned by
// their Object and referred to by pointer from Relocations; the pointer
// remains valid for the lifetime of the Object, since symbol insertion never
// moves existing symbols.
type Symbol struct {
	Name    string
	Binding Binding
	Type    SymbolType
	// Section the symbol is defined in, or nil while undefined.
	Section *Section
	Offset  uint64
	Size    uint32
}

// IsDefined checks whether the symbol has been given a definition.
func (s *Symbol) IsDefined() bool {
	return s.Section != nil
}

// Define gives the symbol a definition at an offset within a section.
func (s *Symbol) Define(section *Section, offset uint64, size uint32) {
	s.Section = section
	s.Offset = offset
	s.Size = size
}

// Relocation instructs the linker to patch a fixed offset within its owning
// section with an address derived from a symbol plus an addend, using an
// architecture-specific encoding identified by Type.  A nil Symbol denotes a
// relocation relative to the load base.
type Relocation struct {
	Type   uint32
	Offset uint64
	Addend int64
	Symbol *Symbol
}

// Section is a named span of a relocatable object.  Contents may be shorter
// than the declared size, e.g. for zero-fill regions.
type Section struct {
	Name      string
	Type      SectionType
	Flags     SectionFlag
	Contents  []byte
	Alignment uint64
	// Relocations to apply within this section, in order.
	Relocations []Relocation
	// RelocatedSection is the target this SHT_RELA section describes, or nil
	// for all other section types.
	RelocatedSection *Section
	// declaredSize records an sh_size in excess of the contents length.
	declaredSize uint64
}

// NewSection constructs a section with the default alignment.
func NewSection(name string, typ SectionType) *Section {
	return &Section{Name: name, Type: typ, Alignment: 1}
}

// Size returns the larger of the declared size and the contents length.
func (s *Section) Size() uint64 {
	if n := uint64(len(s.Contents)); n > s.declaredSize {
		return n
	}
	//
	return s.declaredSize
}

// SetSize declares a size which may exceed the contents length.
func (s *Section) SetSize(size uint64) {
	s.declaredSize = size
}

// IsAlloc checks whether the section occupies memory at run time.
func (s *Section) IsAlloc() bool {
	return s.Flags&SHF_ALLOC != 0
}

// IsWritable checks whether the section is writable at run time.
func (s *Section) IsWritable() bool {
	return s.Flags&SHF_WRITE != 0
}

// IsExec checks whether the section contains executable code.
func (s *Section) IsExec() bool {
	return s.Flags&SHF_EXECINSTR != 0
}

// AddRelocation appends a relocation to this section.
func (s *Section) AddRelocation(r Relocation) {
	s.Relocations = append(s.Relocations, r)
}

// Append adds bytes to the section contents, returning the offset at which
// they were placed.
func (s *Section) Append(data []byte) uint64 {
	offset := uint64(len(s.Contents))
	s.Contents = append(s.Contents, data...)
	//
	return offset
}

// AppendWord adds a little-endian 64-bit word to the section contents,
// returning its offset.
func (s *Section) AppendWord(w uint64) uint64 {
	var buf [8]byte
	//
	binary.LittleEndian.PutUint64(buf[:], w)
	//
	return s.Append(buf[:])
}
