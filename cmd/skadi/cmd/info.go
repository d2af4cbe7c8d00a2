package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/skadi/pkg/imagefile"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show file header and stream summary",
	Long: `Show the header, GUID and record streams of an E57 file.

Example:
  skadi info scan.e57`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imf, err := imagefile.Open(args[0])
		if err != nil {
			return err
		}
		defer imf.Close()

		major, minor := imf.Version()
		fmt.Printf("File:    %s\n", imf.Path())
		fmt.Printf("Version: %d.%d\n", major, minor)
		fmt.Printf("GUID:    %s\n", imf.GUID())

		streams := findStreams(imf.Root())
		fmt.Printf("Streams: %d\n", len(streams))
		for _, s := range streams {
			count, err := s.cv.RecordCount()
			if err != nil {
				return err
			}
			offset, err := s.cv.SectionOffset()
			if err != nil {
				return err
			}
			fmt.Printf("  %-30s %10d records", s.path, count)
			if offset >= 0 {
				fmt.Printf("  section at %d", offset)
			}
			fmt.Println()
			proto := s.cv.Prototype()
			for i := 0; i < proto.ChildCount(); i++ {
				child, err := proto.At(i)
				if err != nil {
					return err
				}
				fmt.Printf("    %-28s %s\n", child.ElementName(), child.Kind())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
