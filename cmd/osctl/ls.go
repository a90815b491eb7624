package main

import (
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

var (
	lsRecursive bool
	lsLimit     int
	lsLong      bool
)

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List entries under a path",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}

		path := "/"
		if len(args) == 1 {
			path = args[0]
		}

		op := storage.OpList{Limit: lsLimit}
		if !lsRecursive {
			op.Delimiter = "/"
		}

		pager, err := a.List(cmd.Context(), path, op)
		if err != nil {
			return pkgerrors.Wrap(err, "list failed")
		}

		for {
			entries, err := pager.Next(cmd.Context())
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return pkgerrors.Wrap(err, "list failed")
			}
			for _, e := range entries {
				if lsLong {
					fmt.Printf("%-4s %12d  %s\n", e.Metadata.Mode, e.Metadata.ContentLength, e.Path)
				} else {
					fmt.Println(e.Path)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "list entries at any depth")
	lsCmd.Flags().IntVar(&lsLimit, "limit", 0, "stop after this many entries")
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show mode and size")
}
