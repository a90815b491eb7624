package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

var presignExpire time.Duration

var presignCmd = &cobra.Command{
	Use:   "presign <stat|read|write> <path>",
	Short: "Produce a self-contained signed request for a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var op storage.PresignOperation
		switch args[0] {
		case "stat":
			op = storage.PresignStat
		case "read":
			op = storage.PresignRead
		case "write":
			op = storage.PresignWrite
		default:
			return errors.Errorf("unknown presign operation %q", args[0])
		}

		a, err := openAccessor()
		if err != nil {
			return err
		}

		signed, err := a.Presign(cmd.Context(), args[1], storage.OpPresign{
			Operation: op,
			Expire:    presignExpire,
		})
		if err != nil {
			return errors.Wrap(err, "presign failed")
		}

		fmt.Printf("%s %s\n", signed.Method, signed.URL)
		for name, values := range signed.Header {
			for _, v := range values {
				fmt.Printf("%s: %s\n", name, v)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presignCmd)

	presignCmd.Flags().DurationVar(&presignExpire, "expire", time.Hour, "validity window of the signed request")
}
