package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

var (
	version = "0.1.0"
	commit  = "none"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root, a := newRootCommand()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "tractfeatures",
		Short: "Baltimore census tract features ETL",
		Long: `tractfeatures builds per-tract features for Baltimore City census tracts.
It converts raw delimited files to Parquet, counts point layers per tract,
and curates every feature into one analytic table on object storage.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.flags.configFile, "config", "", "Path to YAML configuration (default ./tractfeatures.yaml if present)")
	flags.StringVar(&a.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.flags.logFormat, "log-format", "", "Log encoding (json, console)")
	flags.DurationVar(&a.flags.timeout, "timeout", 0, "Abort the job after this duration (0 disables)")
	flags.StringVar(&a.flags.cpuProfile, "cpuprofile", "", "Write a CPU profile of the job to this file")
	flags.StringVar(&a.flags.memProfile, "memprofile", "", "Write a heap profile to this file when the job ends")

	root.AddCommand(
		newConvertCommand(a),
		newPointsCommand(a),
		newSchoolsCommand(a),
		newCurateCommand(a),
		newCurateDynamicCommand(a),
		newTractsCommand(a),
		newPublishCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root, a
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Annotations: map[string]string{
			skipSetup: "true",
		},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tractfeatures v%s (%s)\n", version, commit)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
