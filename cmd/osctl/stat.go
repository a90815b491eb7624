package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show metadata of one object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}

		meta, err := a.Stat(cmd.Context(), args[0], storage.OpStat{})
		if err != nil {
			return errors.Wrap(err, "stat failed")
		}

		fmt.Printf("path:           %s\n", args[0])
		fmt.Printf("mode:           %s\n", meta.Mode)
		if meta.Mode.IsFile() {
			fmt.Printf("content length: %d\n", meta.ContentLength)
			if meta.ContentType != "" {
				fmt.Printf("content type:   %s\n", meta.ContentType)
			}
			if meta.ETag != "" {
				fmt.Printf("etag:           %s\n", meta.ETag)
			}
			if !meta.LastModified.IsZero() {
				fmt.Printf("last modified:  %s\n", meta.LastModified)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
