package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cpCmd = &cobra.Command{
	Use:   "cp <from> <to>",
	Short: "Copy an object inside the backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}
		if err := a.Copy(cmd.Context(), args[0], args[1]); err != nil {
			return errors.Wrap(err, "copy failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cpCmd)
}
