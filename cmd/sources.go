// spicegen sources [path]
package cmd

import (
	"fmt"

	"github.com/qobs-build/spicegen/internal/discover"
	"github.com/qobs-build/spicegen/internal/msg"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources [target path]",
	Short: "List the sources that go into the archive",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(args)
		set, err := discover.ScanDir(cfg.SourceDir(), cfg.Native.Extension)
		if err != nil {
			msg.Fatal("%v", err)
		}
		if err := set.Glob(cfg.Dir(), cfg.Native.ExtraSources); err != nil {
			msg.Fatal("%v", err)
		}
		for _, f := range set.Files {
			fmt.Println(f)
		}
		for _, s := range set.Skipped {
			msg.Warn("skipped %s", s)
		}
		msg.Info("%d sources", set.Len())
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
