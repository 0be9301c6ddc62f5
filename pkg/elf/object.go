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
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// Object is the top-level container of a relocatable object: an ordered
// collection of sections and an ordered collection of symbols, plus the
// file-header metadata.  Both collections are slices of pointers, so
// insertion never invalidates a Section or Symbol reference held elsewhere.
type Object struct {
	Sections []*Section
	Symbols  []*Symbol
	//
	Type    ObjectType
	Machine uint16
	Version uint32
	Entry   uint64
	Flags   uint32
}

// NewObject constructs an empty object.
func NewObject() *Object {
	return &Object{}
}

// AddSection appends a new section and returns it.
func (o *Object) AddSection(name string, typ SectionType) *Section {
	s := NewSection(name, typ)
	o.Sections = append(o.Sections, s)
	//
	return s
}

// AddSymbol appends a new, undefined symbol and returns it.
func (o *Object) AddSymbol(name string) *Symbol {
	s := &Symbol{Name: name}
	o.Symbols = append(o.Symbols, s)
	//
	return s
}

// AddRelocationSection synthesizes the companion ".rela.<name>" section for
// an existing section.  The new section carries no encoded contents of its
// own: the relocations live on the target section and are rendered at
// serialization time.
func (o *Object) AddRelocationSection(target *Section) *Section {
	s := o.AddSection(".rela"+target.Name, SHT_RELA)
	s.RelocatedSection = target
	s.Alignment = 8
	//
	return s
}

// FindSection returns the first section with the given name, or nil.  First
// match is a deliberate contract: both parsed and hand-built objects may
// contain duplicate section names.
func (o *Object) FindSection(name string) *Section {
	for _, s := range o.Sections {
		if s.Name == name {
			return s
		}
	}
	//
	return nil
}

// FindSymbol returns the first symbol with the given name, or nil.
func (o *Object) FindSymbol(name string) *Symbol {
	for _, s := range o.Symbols {
		if s.Name == name {
			return s
		}
	}
	//
	return nil
}

// EraseSection removes a section from the object.  The caller is responsible
// for ensuring no symbol or relocation still refers to it.
func (o *Object) EraseSection(target *Section) {
	for i, s := range o.Sections {
		if s == target {
			o.Sections = append(o.Sections[:i], o.Sections[i+1:]...)
			return
		}
	}
}

// MergeSections concatenates the given sections into the first of them,
// padding each appended section to its alignment.  Relocation offsets and
// symbol definitions in the absorbed sections are shifted by the accumulated
// length, and the merged section takes the maximum alignment.  The absorbed
// sections are erased.
func (o *Object) MergeSections(sections []*Section) (*Section, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("no sections to merge")
	}
	//
	into := sections[0]
	//
	for _, s := range sections[1:] {
		if s == into {
			return nil, fmt.Errorf("section %s listed twice in merge", s.Name)
		}
		// Pad to the alignment of the incoming section.
		if a := s.Alignment; a > 1 {
			for uint64(len(into.Contents))%a != 0 {
				into.Contents = append(into.Contents, 0)
			}
		}
		//
		base := uint64(len(into.Contents))
		into.Contents = append(into.Contents, s.Contents...)
		// Zero-fill tails become real bytes in the merged section.
		for i := uint64(len(s.Contents)); i < s.Size(); i++ {
			into.Contents = append(into.Contents, 0)
		}
		//
		if s.Alignment > into.Alignment {
			into.Alignment = s.Alignment
		}
		//
		for _, r := range s.Relocations {
			r.Offset += base
			into.Relocations = append(into.Relocations, r)
		}
		// Re-point symbols defined in the absorbed section.
		for _, sym := range o.Symbols {
			if sym.Section == s {
				sym.Section = into
				sym.Offset += base
			}
		}
		//
		log.Debugf("merged section %s into %s at offset %d", s.Name, into.Name, base)
		o.EraseSection(s)
	}
	//
	return into, nil
}

// MergeTextSections merges every executable, allocatable section into one
// ".text" section.
func (o *Object) MergeTextSections() (*Section, error) {
	var texts []*Section
	//
	for _, s := range o.Sections {
		if s.IsAlloc() && s.IsExec() {
			texts = append(texts, s)
		}
	}
	//
	if len(texts) == 0 {
		return nil, fmt.Errorf("no text sections to merge")
	}
	//
	merged, err := o.MergeSections(texts)
	if err != nil {
		return nil, err
	}
	//
	merged.Name = ".text"
	//
	return merged, nil
}

// Dump writes a human-readable listing of the object to w.
func (o *Object) Dump(w io.Writer) {
	fmt.Fprintf(w, "object: type=%d machine=%d version=%d entry=%#x flags=%#x\n",
		o.Type, o.Machine, o.Version, o.Entry, o.Flags)
	//
	fmt.Fprintf(w, "sections (%d):\n", len(o.Sections))
	//
	for _, s := range o.Sections {
		fmt.Fprintf(w, "  %-24s type=%#x flags=%#x size=%d align=%d relocs=%d\n",
			s.Name, uint32(s.Type), uint64(s.Flags), s.Size(), s.Alignment, len(s.Relocations))
		//
		for _, r := range s.Relocations {
			name := "<none>"
			if r.Symbol != nil {
				name = r.Symbol.Name
			}
			//
			fmt.Fprintf(w, "    reloc type=%d offset=%#x addend=%d symbol=%s\n",
				r.Type, r.Offset, r.Addend, name)
		}
	}
	//
	fmt.Fprintf(w, "symbols (%d):\n", len(o.Symbols))
	//
	for _, s := range o.Symbols {
		section := "<undefined>"
		if s.IsDefined() {
			section = s.Section.Name
		}
		//
		fmt.Fprintf(w, "  %-24s binding=%d type=%d section=%s offset=%#x size=%d\n",
			s.Name, s.Binding, s.Type, section, s.Offset, s.Size)
	}
}
