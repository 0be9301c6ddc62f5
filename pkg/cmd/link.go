package cmd

import (
	"fmt"
	"os"

	"github.com/darkbuck/fuse/pkg/elf"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link [flags] object_file",
	Short: "Link a relocatable object into a shared object.",
	Long: `Link a relocatable object file into a shared object suitable for
	loading with dlopen.  Architecture-specific relocations require a
	registered backend, hence this command only accepts objects whose
	relocations have already been resolved.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		// Configure log level
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}
		output := GetString(cmd, "output")
		// Parse object file
		obj := readObjectFile(args[0])
		// Reject objects requiring architecture-specific fixups
		for _, s := range obj.Sections {
			if len(s.Relocations) != 0 {
				fmt.Printf("%s: section %s has %d unresolved relocations (machine %d has no registered backend)\n",
					args[0], s.Name, len(s.Relocations), obj.Machine)
				os.Exit(2)
			}
		}
		// Merge text sections into a single segment
		if GetFlag(cmd, "merge-text") {
			if _, err := obj.MergeTextSections(); err != nil {
				fmt.Println(err)
				os.Exit(2)
			}
		}
		// Write out shared object
		bytes, err := elf.WriteSharedObject(obj, rawLinker{})
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		//
		writeOutputFile(output, bytes)
		log.Debugf("wrote %s (%d bytes)", output, len(bytes))
	},
}

// rawLinker drives WriteSharedObject for objects which carry no
// relocations.  Every method is unreachable since the link command rejects
// objects with relocations up front.
type rawLinker struct{}

func (rawLinker) AddGotEntry(got *elf.Section, sym *elf.Symbol) uint64 {
	panic("unreachable")
}

func (rawLinker) NeedsPltEntry(reloc *elf.Relocation) bool {
	return false
}

func (rawLinker) InitPltSection(plt *elf.Section, got *elf.Section) {}

func (rawLinker) AddPltEntry(sym *elf.Symbol, plt *elf.Section, got *elf.Section, gotSym *elf.Symbol) *elf.Symbol {
	panic("unreachable")
}

func (rawLinker) Relocate(fixupOffset uint64, fixupBytes []byte, typ uint32, symOffset uint64,
	addend int64, got *elf.Section) {
	panic("unreachable")
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().StringP("output", "o", "a.out.so", "output shared object file")
	linkCmd.Flags().Bool("merge-text", false, "merge executable sections into a single .text section")
}
