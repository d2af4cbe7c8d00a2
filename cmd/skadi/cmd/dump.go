package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/skadi/pkg/e57"
	"github.com/ssargent/skadi/pkg/imagefile"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <file> <stream>",
	Short: "Print records of one stream",
	Long: `Print records of one record stream as text, one record per line.
The stream is addressed by the pathname shown by skadi info.

Example:
  skadi dump scan.e57 /points --skip 1000 --limit 20`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, _ := cmd.Flags().GetInt64("skip")
		limit, _ := cmd.Flags().GetInt64("limit")

		imf, err := imagefile.Open(args[0])
		if err != nil {
			return err
		}
		defer imf.Close()

		var ref *streamRef
		for _, s := range findStreams(imf.Root()) {
			if s.path == args[1] {
				ref = &s
				break
			}
		}
		if ref == nil {
			return e57.Newf(e57.PathUndefined, "no stream %q in %s", args[1], args[0])
		}

		capacity := 1024
		if limit > 0 && limit < int64(capacity) {
			capacity = int(limit)
		}
		bufs, names, backing, err := fieldBuffers(ref.cv, capacity)
		if err != nil {
			return err
		}
		r, err := imf.NewReader(ref.cv, bufs)
		if err != nil {
			return err
		}
		defer r.Close()

		if skip > 0 {
			if err := r.Seek(skip); err != nil {
				return err
			}
		}

		var printed int64
		for limit <= 0 || printed < limit {
			n, err := r.Read()
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			for i := 0; i < n && (limit <= 0 || printed < limit); i++ {
				fmt.Printf("%d:", skip+printed)
				for fi, name := range names {
					fmt.Printf(" %s=%v", name, valueAt(backing[fi], i))
				}
				fmt.Println()
				printed++
			}
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().Int64("skip", 0, "Skip this many records before printing")
	dumpCmd.Flags().Int64("limit", 0, "Stop after this many records (0 = all)")
	rootCmd.AddCommand(dumpCmd)
}
