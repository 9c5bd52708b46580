// spicegen fetch [path]
package cmd

import (
	"os"

	"github.com/qobs-build/spicegen/internal/fetch"
	"github.com/qobs-build/spicegen/internal/msg"
	"github.com/qobs-build/spicegen/internal/pipeline"
	"github.com/spf13/cobra"
)

var flagSource string

var fetchCmd = &cobra.Command{
	Use:   "fetch [target path]",
	Short: "Fetch the upstream CSPICE sources into the project",
	Long: `Fetch the upstream CSPICE sources named by upstream.source, or --source,
into upstream.into. An existing git checkout is pulled.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(args)
		raw := cfg.Upstream.Source
		if flagSource != "" {
			raw = flagSource
		}
		src, err := fetch.Parse(raw)
		if err != nil {
			msg.Fatal("upstream.source: %v", err)
		}

		dest := cfg.Abs(cfg.Upstream.Into)
		msg.Step("Fetching", "%s into %s", src, dest)
		if err := fetch.Fetch(cmd.Context(), src, dest, os.Stdout); err != nil {
			msg.Fatal("%v", err)
		}
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean [target path]",
	Short: "Remove the build directory and the generated interface",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(args)
		if err := pipeline.Clean(cfg); err != nil {
			msg.Fatal("%v", err)
		}
		msg.Step("Removed", "%s", cfg.OutDir())
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&flagSource, "source", "", "Override upstream.source")

	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Build directory (default: build.dir from config)")
}
