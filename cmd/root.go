package cmd

import (
	"fmt"
	"github.com/ValentinKolb/snapKV/cmd/inspect"
	"github.com/ValentinKolb/snapKV/cmd/perf"
	"github.com/ValentinKolb/snapKV/cmd/util"
	"github.com/ValentinKolb/snapKV/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "snapkv",
		Short: "multi-version key-value store",
		Long: fmt.Sprintf(`snapKV (v%s)

A multi-version key-value store library written in Go. Every write publishes
a new version at a generation, readers pin a generation and see a consistent
snapshot while old versions are collected in the background.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			return common.InitLoggers(viper.GetString("log-level"))
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of snapKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snapKV v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(inspect.InspectCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
