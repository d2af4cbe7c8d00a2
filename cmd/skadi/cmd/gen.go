/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/ssargent/skadi/pkg/imagefile"
	"github.com/ssargent/skadi/pkg/node"
	"github.com/ssargent/skadi/pkg/stream"
)

// genCmd represents the gen command
var genCmd = &cobra.Command{
	Use:   "gen <file>",
	Short: "Generate a synthetic point cloud file",
	Long: `Generate an E57 file holding a synthetic spiral point cloud at
/points, useful for testing readers and benchmarking transfers.

Example:
  skadi gen test.e57 --records 100000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, _ := cmd.Flags().GetInt64("records")
		if records < 0 {
			return fmt.Errorf("record count %d is negative", records)
		}

		imf, err := imagefile.Create(args[0])
		if err != nil {
			return err
		}

		proto, err := node.NewStructure(imf)
		if err != nil {
			return err
		}
		for _, name := range []string{"cartesianX", "cartesianY", "cartesianZ"} {
			fl, err := node.NewFloat(imf, 0, node.Double, -1e6, 1e6)
			if err != nil {
				return err
			}
			if err := proto.Set(name, fl); err != nil {
				return err
			}
		}
		intensity, err := node.NewInteger(imf, 0, 0, 4095)
		if err != nil {
			return err
		}
		if err := proto.Set("intensity", intensity); err != nil {
			return err
		}
		cv, err := node.NewCompressedVector(imf, proto)
		if err != nil {
			return err
		}
		if err := imf.Root().Set("points", cv); err != nil {
			return err
		}

		const chunk = 4096
		xs := make([]float64, chunk)
		ys := make([]float64, chunk)
		zs := make([]float64, chunk)
		is := make([]int64, chunk)
		var bufs []*stream.Buffer
		for name, data := range map[string]any{
			"cartesianX": xs, "cartesianY": ys, "cartesianZ": zs, "intensity": is,
		} {
			b, err := stream.NewBuffer(name, data, stream.BufferOptions{})
			if err != nil {
				return err
			}
			bufs = append(bufs, b)
		}

		w, err := imf.NewWriter(cv, bufs, cfg.Stream.PacketTargetSize)
		if err != nil {
			return err
		}
		for written := int64(0); written < records; {
			batch := int64(chunk)
			if records-written < batch {
				batch = records - written
			}
			for i := int64(0); i < batch; i++ {
				t := float64(written+i) * 0.001
				xs[i] = math.Cos(t) * t
				ys[i] = math.Sin(t) * t
				zs[i] = t * 0.1
				is[i] = (written + i) % 4096
			}
			if err := w.Write(int(batch)); err != nil {
				w.Close()
				imf.Close()
				return err
			}
			written += batch
		}
		if err := w.Close(); err != nil {
			imf.Close()
			return err
		}
		if err := imf.Close(); err != nil {
			return err
		}

		fmt.Printf("wrote %d records to %s\n", records, args[0])
		return nil
	},
}

func init() {
	genCmd.Flags().Int64("records", 10000, "Number of records to generate")
	rootCmd.AddCommand(genCmd)
}
