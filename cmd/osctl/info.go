package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the backend's identity and capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccessor()
		if err != nil {
			return err
		}
		info := a.Info()
		cap := info.Capability

		fmt.Printf("scheme: %s\n", info.Scheme)
		fmt.Printf("name:   %s\n", info.Name)
		fmt.Printf("root:   %s\n", info.Root)
		fmt.Println("capabilities:")
		for _, c := range []struct {
			name string
			ok   bool
		}{
			{"stat", cap.Stat},
			{"read", cap.Read},
			{"read range", cap.ReadWithRange},
			{"read suffix range", cap.ReadWithSuffixRange},
			{"write", cap.Write},
			{"write append", cap.WriteCanAppend},
			{"write multipart", cap.WriteCanMulti},
			{"create dir", cap.CreateDir},
			{"delete", cap.Delete},
			{"copy", cap.Copy},
			{"list", cap.List},
			{"list delimiter", cap.ListWithDelimiter},
			{"presign", cap.Presign},
		} {
			if c.ok {
				fmt.Printf("  %s\n", c.name)
			}
		}
		if cap.WriteMultiMinSize > 0 {
			fmt.Printf("multipart part size: %d .. %d bytes\n", cap.WriteMultiMinSize, cap.WriteMultiMaxSize)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
