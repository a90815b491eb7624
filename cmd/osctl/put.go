package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

var (
	putAppend      bool
	putContentType string
	putChunkSize   int
)

var putCmd = &cobra.Command{
	Use:   "put <path> [file]",
	Short: "Upload a file (or stdin) to a path",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}

		src := os.Stdin
		if len(args) == 2 {
			f, err := os.Open(args[1])
			if err != nil {
				return errors.Wrap(err, "opening source file failed")
			}
			defer f.Close()
			src = f
		}

		w, err := a.Write(cmd.Context(), args[0], storage.OpWrite{
			Append:      putAppend,
			ContentType: putContentType,
		})
		if err != nil {
			return errors.Wrap(err, "starting write failed")
		}

		buf := make([]byte, putChunkSize)
		for {
			n, readErr := src.Read(buf)
			if n > 0 {
				if err := w.Write(cmd.Context(), buf[:n]); err != nil {
					return errors.Wrap(err, "write failed")
				}
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				return errors.Wrap(readErr, "reading source failed")
			}
		}
		if err := w.Close(cmd.Context()); err != nil {
			return errors.Wrap(err, "finishing write failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().BoolVar(&putAppend, "append", false, "use the append strategy")
	putCmd.Flags().StringVar(&putContentType, "content-type", "", "content type of the object")
	putCmd.Flags().IntVar(&putChunkSize, "chunk-size", 8*1024*1024, "read the source in chunks of this size")
}
