package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gogpu/vidflow"
)

func newRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "vidflow",
		Short: "Real-time GPU video pipeline",
		Long: `vidflow captures frames from a camera, runs them through the beautify
filter graph and extracts the result into recording buffers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default ./vidflow.yaml or $HOME/.vidflow/vidflow.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log-format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(newRunCommand(v))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vidflow version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vidflow %s\n", vidflow.Version)
		},
	}
}

// bindFlags binds every flag of cmd to the viper key of the same name.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(f.Name, f)
		}
	})
	return err
}
