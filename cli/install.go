package cli

import (
	"fmt"
	"os"

	"rawwebapi/converter"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Locate ThermoRawFileParser or download it into the install directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := converter.NewResolver(cfg, os.Stderr).Resolve(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), converter.Describe(h, nil))
		return nil
	},
}
