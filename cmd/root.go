// spicegen [path], spicegen build [path]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/qobs-build/spicegen/internal/config"
	"github.com/qobs-build/spicegen/internal/msg"
	"github.com/qobs-build/spicegen/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	flagForce    bool
	flagJobs     int
	flagOut      string
	flagProgress bool
	flagStage    = newStageValue("all", map[string]string{
		"all":      "Compile the archive and generate the interface (default)",
		"native":   "Only compile the static archive",
		"bindings": "Only generate the cgo interface",
	})
)

func targetDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// loadConfig reads the project configuration and applies flag overrides.
func loadConfig(args []string) *config.Config {
	cfg, err := config.Load(targetDir(args))
	if err != nil {
		msg.Fatal("%v", err)
	}
	if flagOut != "" {
		cfg.Build.Dir = flagOut
	}
	if flagJobs > 0 {
		cfg.Build.Jobs = flagJobs
	}
	return cfg
}

func buildOptions() pipeline.Options {
	return pipeline.Options{
		Directives:   os.Stdout,
		Log:          msg.Output,
		Progress:     flagProgress,
		Force:        flagForce,
		SkipNative:   flagStage.skipNative(),
		SkipBindings: flagStage.skipBindings(),
	}
}

func report(res *pipeline.Result) {
	if res.UpToDate {
		msg.Step("Fresh", "build %s is up to date", res.BuildID)
		return
	}
	if res.Archive != nil {
		msg.Step("Archived", "%s", res.Archive.Path)
	}
	if res.Artifact != nil {
		msg.Step("Generated", "%s", res.Artifact.Path)
	}
	msg.Step("Finished", "build %s", res.BuildID)
}

func doBuild(cmd *cobra.Command, args []string) {
	cfg := loadConfig(args)
	res, err := pipeline.Run(cmd.Context(), cfg, buildOptions())
	if err != nil {
		msg.Fatal("%v", err)
	}
	report(res)
}

var rootCmd = &cobra.Command{
	Use:   "spicegen [target path]",
	Short: "Build CSPICE and generate its cgo interface",
	Long: `Compiles the CSPICE sources into a static archive and derives a cgo
interface from its public headers. If no target path is given, uses "."`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Build the archive and the interface",
	Long:  `Build the archive and the interface. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	// spicegen build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Rebuild even if nothing changed")
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "Number of parallel compiler processes (default: one per CPU)")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "Build directory (default: build.dir from "+config.Filename+")")
	cmd.Flags().BoolVar(&flagProgress, "progress", false, "Draw a progress bar instead of one line per source")
	cmd.Flags().VarP(&flagStage, "stage", "s", "Stages to run, one of "+flagStage.HelpString())
	cmd.RegisterFlagCompletionFunc("stage", flagStage.completion())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
