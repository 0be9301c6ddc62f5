package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	log "github.com/sirupsen/logrus"
)

// objdumpCmd represents the objdump command
var objdumpCmd = &cobra.Command{
	Use:   "objdump [flags] object_file",
	Short: "Dump the contents of a relocatable object file.",
	Long: `Dump the sections, symbols and relocations of a relocatable
	object file in a human-readable form.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		// Configure log level
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}
		// Parse object file
		obj := readObjectFile(args[0])
		// Print summary
		obj.Dump(os.Stdout)
		// Print section contents (if requested)
		if GetFlag(cmd, "hex") {
			for _, s := range obj.Sections {
				if len(s.Contents) == 0 {
					continue
				}

				fmt.Printf("\nContents of section %s:\n", s.Name)
				hexDump(s.Contents)
			}
		}
	},
}

// Print a hex dump of the given bytes, sized to the enclosing terminal (when
// there is one).
func hexDump(data []byte) {
	width := 16
	// Check whether terminal supports a wider dump
	if term.IsTerminal(0) {
		if w, _, err := term.GetSize(0); err == nil && w >= 140 {
			width = 32
		}
	}
	//
	for i := 0; i < len(data); i += width {
		fmt.Printf("%08x:", i)

		for j := i; j < i+width && j < len(data); j++ {
			fmt.Printf(" %02x", data[j])
		}

		fmt.Println()
	}
}

func init() {
	rootCmd.AddCommand(objdumpCmd)
	objdumpCmd.Flags().Bool("hex", false, "dump section contents in hex")
}
