/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/skadi/pkg/imagefile"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify tree invariants and stream checksums",
	Long: `Verify an E57 file: run the element tree invariant checks and
read every record stream end to end, which validates each packet
checksum along the way.

Example:
  skadi verify scan.e57`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imf, err := imagefile.Open(args[0])
		if err != nil {
			return err
		}
		defer imf.Close()

		if err := imf.Verify(); err != nil {
			return fmt.Errorf("tree verification failed: %w", err)
		}

		for _, s := range findStreams(imf.Root()) {
			bufs, _, _, err := fieldBuffers(s.cv, 4096)
			if err != nil {
				return err
			}
			r, err := imf.NewReader(s.cv, bufs)
			if err != nil {
				return err
			}
			var total int64
			for {
				n, err := r.Read()
				if err != nil {
					r.Close()
					return fmt.Errorf("stream %s at record %d: %w", s.path, total, err)
				}
				if n == 0 {
					break
				}
				total += int64(n)
			}
			r.Close()
			fmt.Printf("%-30s %10d records ok\n", s.path, total)
		}
		fmt.Println("verification passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
