// spicegen init [name], spicegen new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/spicegen/internal/config"
	"github.com/qobs-build/spicegen/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "spicegen"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// initIn scaffolds a project in an existing directory
func initIn(dir, name string, example bool) {
	upstream := flagUpstream
	if upstream == "" {
		upstream = "# gh:someone/cspice-mirror@main"
	} else {
		upstream = fmt.Sprintf("source = %q", upstream)
	}

	// Spicegen.toml
	writefile(`[package]
name = "`+name+`"
description = "CSPICE built from source with a generated cgo interface."

[native]
source_dir = "src/c"
include_dirs = ["src/includes"]
cflags = ["-Wno-dangling-else"]

[native.'target_os == "darwin"']
cflags = ["-Wno-implicit-function-declaration"]

[bindings]
header = "src/includes/`+name+`.h"
output = "`+name+`/c_`+name+`.go"
build_tags = "cspice"
ignore_macros = `+quoteList(config.DefaultIgnoredMacros)+`
links = ["m"]

[upstream]
`+upstream+`
into = "src"
`, dir, config.Filename)

	mkdir(dir, "src", "c")
	mkdir(dir, "src", "includes")

	if example {
		// src/c/kernel.c
		writefile(`#include "`+name+`.h"

static int kernel_loaded;

void furnsh_c(ConstSpiceChar *file) {
    (void)file;
    kernel_loaded = 1;
}

void unload_c(ConstSpiceChar *file) {
    (void)file;
    kernel_loaded = 0;
}

SpiceInt loaded_c(void) {
    return kernel_loaded;
}
`, dir, "src", "c", "kernel.c")

		// src/includes/<name>.h
		writefile(`#ifndef `+strings.ToUpper(name)+`_H
#define `+strings.ToUpper(name)+`_H

typedef int SpiceInt;
typedef const char ConstSpiceChar;

#define SPICE_EXAMPLE_VERSION 1

void furnsh_c(ConstSpiceChar *file);
void unload_c(ConstSpiceChar *file);
SpiceInt loaded_c(void);

#endif
`, dir, "src", "includes", name+".h")
	}

	// .gitignore
	writefile(`build/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to fetch the upstream sources first.\n",
		color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" fetch "+dir))
}

var (
	flagExample  bool
	flagUpstream string
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new project in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], flagExample)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), flagExample)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{initCmd, newCmd} {
		rootCmd.AddCommand(cmd)
		cmd.Flags().BoolVarP(&flagExample, "example", "e", false, "Add a tiny stand-in library so the project builds without CSPICE")
		cmd.Flags().StringVarP(&flagUpstream, "upstream", "u", "", "Set upstream.source")
	}
}
