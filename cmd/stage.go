package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// stageValue is the --stage flag. Keys are the stage names, values their
// help text.
type stageValue struct {
	value   string
	allowed map[string]string
}

func newStageValue(defaultVal string, allowed map[string]string) stageValue {
	if _, ok := allowed[defaultVal]; !ok {
		panic(fmt.Sprintf("default stage %q not in allowed set", defaultVal))
	}
	return stageValue{value: defaultVal, allowed: allowed}
}

func (s *stageValue) String() string     { return s.value }
func (s *stageValue) HelpString() string { return "[" + strings.Join(s.names(), ", ") + "]" }
func (s *stageValue) Type() string       { return "stage" }

func (s *stageValue) Set(v string) error {
	if _, ok := s.allowed[v]; ok {
		s.value = v
		return nil
	}
	return fmt.Errorf("must be one of: %s", strings.Join(s.names(), ", "))
}

// skipNative and skipBindings translate the flag into pipeline options.
func (s *stageValue) skipNative() bool   { return s.value == "bindings" }
func (s *stageValue) skipBindings() bool { return s.value == "native" }

func (s *stageValue) names() []string {
	keys := make([]string, 0, len(s.allowed))
	for k := range s.allowed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *stageValue) completion() func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		items := make([]string, 0, len(s.allowed))
		for _, k := range s.names() {
			if !strings.HasPrefix(k, toComplete) {
				continue
			}
			items = append(items, k+"\t"+s.allowed[k])
		}
		return items, cobra.ShellCompDirectiveNoFileComp
	}
}
