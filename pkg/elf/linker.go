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

// Linker is the architecture-specific strategy consumed by
// WriteSharedObject.  The generic writer computes segment layout and drives
// relocation, while the implementation owns relocation encodings and
// GOT/PLT entry formats.  There is no default implementation.
type Linker interface {
	// AddGotEntry returns the byte offset within the global offset table of
	// an entry for the given symbol, creating it on first use.  Calling this
	// twice with the same symbol must return the same offset.
	AddGotEntry(got *Section, sym *Symbol) uint64

	// NeedsPltEntry checks whether a relocation must be redirected through
	// the procedure linkage table.  It is a pure function of the relocation
	// type.
	NeedsPltEntry(reloc *Relocation) bool

	// InitPltSection performs one-time initialisation of the PLT section.
	// Architectures without trampoline headers may leave it empty.
	InitPltSection(plt *Section, got *Section)

	// AddPltEntry emits a trampoline for a symbol resolved at load time.  It
	// must define sym to point into the PLT, and returns a fresh
	// externally-resolved symbol which the trampoline jumps to.  gotSym
	// names the base of the global offset table.
	AddPltEntry(sym *Symbol, plt *Section, got *Section, gotSym *Symbol) *Symbol

	// Relocate performs the binary patch for one relocation.  fixupOffset is
	// the virtual address of the patch site, fixupBytes the section bytes at
	// that site, symOffset the resolved virtual address of the target symbol
	// (zero when unresolved until load time).
	Relocate(fixupOffset uint64, fixupBytes []byte, typ uint32, symOffset uint64, addend int64, got *Section)
}
