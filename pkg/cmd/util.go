package cmd

import (
	"fmt"
	"os"

	"github.com/darkbuck/fuse/pkg/elf"
	"github.com/spf13/cobra"
)

// GetFlag gets an expected flag, or exit if an error arises.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetString gets an expected string flag, or exit if an error arises.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetUint gets an expected unsigned integer flag, or exit if an error arises.
func GetUint(cmd *cobra.Command, flag string) uint {
	r, err := cmd.Flags().GetUint(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// Parse a relocatable object file, or exit if the file cannot be read or is
// not a valid object.
func readObjectFile(filename string) *elf.Object {
	bytes, err := os.ReadFile(filename)
	if err == nil {
		var obj *elf.Object
		//
		obj, err = elf.Parse(bytes)
		if err == nil {
			return obj
		}
	}
	// Handle error
	fmt.Printf("%s: %v\n", filename, err)
	os.Exit(2)
	// unreachable
	return nil
}

// Write the given bytes to a file, or exit if the file cannot be written.
func writeOutputFile(filename string, bytes []byte) {
	if err := os.WriteFile(filename, bytes, 0644); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
}
