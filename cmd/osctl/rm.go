package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}
		if err := a.Delete(cmd.Context(), args[0]); err != nil {
			return errors.Wrap(err, "delete failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
