package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/GoSim-25-26J-441/smbo/pkg/config"
)

// validateOptions is the configuration for checking a run configuration
type validateOptions struct {
	ConfigFile string
	Print      bool
}

func (o *validateOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFile, "config", "c", "smbo.yaml", "run configuration `file`")
	fs.BoolVar(&o.Print, "print", false, "print the configuration with defaults applied")
}

// newValidateCommand creates a command for checking a run configuration
func newValidateCommand(o *validateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a run configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRunConfig(o.ConfigFile)
			if err != nil {
				return err
			}
			if o.Print {
				data, err := cfg.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			s, err := cfg.Space()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d parameters, program %s)\n", o.ConfigFile, s.Dim(), cfg.Command.Program)
			return err
		},
	}
	o.addFlags(cmd.Flags())
	return cmd
}
