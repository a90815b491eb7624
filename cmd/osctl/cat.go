package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

var (
	catOffset int64
	catLength int64
	catTail   int64
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print an object's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}

		var r storage.ByteRange
		switch {
		case catTail > 0:
			r = storage.SuffixRange(catTail)
		case catOffset > 0 || catLength > 0:
			r = storage.NewByteRange(catOffset, catLength)
		}

		res, err := a.Read(cmd.Context(), args[0], storage.OpRead{Range: r})
		if err != nil {
			return errors.Wrap(err, "read failed")
		}
		defer res.Body.Close()

		if _, err := io.Copy(os.Stdout, res.Body); err != nil {
			return errors.Wrap(err, "streaming content failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)

	catCmd.Flags().Int64Var(&catOffset, "offset", 0, "start reading at this byte")
	catCmd.Flags().Int64Var(&catLength, "length", 0, "read this many bytes (0 = to the end)")
	catCmd.Flags().Int64Var(&catTail, "tail", 0, "read only the last N bytes")
}
