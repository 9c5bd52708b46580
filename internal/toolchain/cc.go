package toolchain

import (
	"os"
	"os/exec"
)

// TODO: zig cc
var commonCCompilers = []string{"clang", "gcc", "icx", "icc", "tcc"}

// FindCompiler attempts to find a suitable C compiler on the system
func FindCompiler() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}

	for _, compiler := range commonCCompilers {
		path, err := exec.LookPath(compiler)
		if err == nil {
			return path
		}
	}

	return ""
}

// FindArchiver returns $AR or the first ar found on PATH.
func FindArchiver() string {
	if ar := os.Getenv("AR"); ar != "" {
		return ar
	}
	for _, ar := range []string{"ar", "llvm-ar", "gcc-ar"} {
		if path, err := exec.LookPath(ar); err == nil {
			return path
		}
	}
	return ""
}
