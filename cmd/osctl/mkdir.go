package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory marker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}
		if err := a.CreateDir(cmd.Context(), args[0]); err != nil {
			return errors.Wrap(err, "create dir failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
}
