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

// Package elf provides an in-memory model of relocatable ELF objects
// (sections, symbols, relocations) together with a runtime linking
// operation.  Objects are either parsed from the bytes of an externally
// assembled relocatable, or built programmatically by a code generator; a
// target-specific Linker strategy then turns the object into the bytes of a
// position-independent shared object without invoking an external linker.
//
// Enumerant values follow the System V ELF specification so externally
// produced objects parse correctly and emitted images load under a standard
// loader.
package elf

// SectionType is the sh_type field of a section header.
type SectionType uint32

// Section types.
const (
	SHT_NULL     SectionType = 0
	SHT_PROGBITS SectionType = 1
	SHT_SYMTAB   SectionType = 2
	SHT_STRTAB   SectionType = 3
	SHT_RELA     SectionType = 4
	SHT_HASH     SectionType = 5
	SHT_DYNAMIC  SectionType = 6
	SHT_NOTE     SectionType = 7
	SHT_NOBITS   SectionType = 8
	SHT_REL      SectionType = 9
	SHT_DYNSYM   SectionType = 11
	SHT_LOPROC   SectionType = 0x70000000
	SHT_HIPROC   SectionType = 0x7fffffff
)

// SectionFlag is a bit of the sh_flags field of a section header.
type SectionFlag uint64

// Section flags.
const (
	SHF_WRITE     SectionFlag = 0x1
	SHF_ALLOC     SectionFlag = 0x2
	SHF_EXECINSTR SectionFlag = 0x4
	SHF_MASKPROC  SectionFlag = 0xf0000000
)

// Binding is the symbol binding half of the st_info field.
type Binding uint8

// Symbol bindings.
const (
	STB_LOCAL  Binding = 0
	STB_GLOBAL Binding = 1
	STB_WEAK   Binding = 2
	STB_LOPROC Binding = 13
	STB_HIPROC Binding = 15
)

// SymbolType is the symbol type half of the st_info field.
type SymbolType uint8

// Symbol types.
const (
	STT_NOTYPE  SymbolType = 0
	STT_OBJECT  SymbolType = 1
	STT_FUNC    SymbolType = 2
	STT_SECTION SymbolType = 3
	STT_FILE    SymbolType = 4
	STT_LOPROC  SymbolType = 13
	STT_HIPROC  SymbolType = 15
)

// ObjectType is the e_type field of the file header.
type ObjectType uint16

// Object types.
const (
	ET_NONE ObjectType = 0
	ET_REL  ObjectType = 1
	ET_EXEC ObjectType = 2
	ET_DYN  ObjectType = 3
	ET_CORE ObjectType = 4
)

// Machine codes for the architectures this model is used with.
const (
	EM_NONE    uint16 = 0
	EM_386     uint16 = 3
	EM_ARM     uint16 = 40
	EM_X86_64  uint16 = 62
	EM_HEXAGON uint16 = 164
	EM_AARCH64 uint16 = 183
	EM_RISCV   uint16 = 243
)

// SHN_UNDEF marks an undefined symbol's section index.
const SHN_UNDEF uint16 = 0

// Fixed ELF64 structure sizes.
const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
	relaSize = 24
)

// pageSize is the alignment granule for loadable segments.
const pageSize = 0x1000
