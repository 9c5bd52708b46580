// spicegen watch [path]
package cmd

import (
	"time"

	"github.com/qobs-build/spicegen/internal/msg"
	"github.com/qobs-build/spicegen/internal/pipeline"
	"github.com/qobs-build/spicegen/internal/rerun"
	"github.com/spf13/cobra"
)

var flagDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [target path]",
	Short: "Rebuild whenever the sources or headers change",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig(args)
		opts := buildOptions()
		opts.Directives = nil

		build := func() {
			res, err := pipeline.Run(ctx, cfg, opts)
			if err != nil {
				msg.Error("%v", err)
				return
			}
			report(res)
			// later runs only happen because something changed
			opts.Force = false
		}
		build()

		dirs := pipeline.Directives(cfg)
		for _, tree := range dirs.Trees {
			msg.Step("Watching", "%s", tree)
		}
		if err := rerun.Watch(ctx, dirs, flagDebounce, build); err != nil {
			msg.Fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addBuildFlags(watchCmd)
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 300*time.Millisecond, "Quiet period before a rebuild")
}
