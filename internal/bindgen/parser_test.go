package bindgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kernelHeader = `#ifndef KERNEL_H
#define KERNEL_H

#include <math.h>
#include "types.h"

#define KERNEL_VERSION 3
#define KERNEL_NAME "kernel"
#define FP_NAN 0
#define TWICE (KERNEL_VERSION * 2)
#define SQUARE(x) ((x) * (x))

#ifdef __cplusplus
extern "C" {
#endif

enum kind { KIND_A, KIND_B = 5, KIND_C };

void load(ConstSpiceChar *path);
void unload(ConstSpiceChar *path);
SpiceInt loaded(void);
static int hidden(void);

#ifdef KERNEL_EXTRA
void extra(void);
#endif

#ifdef __cplusplus
}
#endif

#endif
`

const typesHeader = `typedef int SpiceInt;
typedef const char ConstSpiceChar;
`

// recordingFilter ignores like IgnoreMacros and remembers every name asked
// about.
type recordingFilter struct {
	IgnoreMacros
	asked []string
}

func (r *recordingFilter) WillParseMacro(name string) MacroBehavior {
	r.asked = append(r.asked, name)
	return r.IgnoreMacros.WillParseMacro(name)
}

func writeHeaders(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestTreeSitterParsesHeaderClosure(t *testing.T) {
	dir := writeHeaders(t, map[string]string{
		"kernel.h":        kernelHeader,
		"include/types.h": typesHeader,
	})
	filter := &recordingFilter{IgnoreMacros: NewIgnoreMacros("FP_NAN", "IPPORT_RESERVED")}

	mod, err := NewTreeSitter().Parse(context.Background(), ParseRequest{
		Header:      filepath.Join(dir, "kernel.h"),
		IncludeDirs: []string{filepath.Join(dir, "include")},
		Filter:      filter,
	})
	require.NoError(t, err)

	assert.Len(t, mod.Headers, 2)
	assert.ElementsMatch(t, []string{"KERNEL_H", "KERNEL_VERSION", "KERNEL_NAME", "FP_NAN", "TWICE", "SQUARE"}, filter.asked)
	assert.Equal(t, []string{"FP_NAN"}, mod.Suppressed)

	macros := make(map[string]Macro)
	for _, m := range mod.Macros {
		macros[m.Name] = m
	}
	assert.NotContains(t, macros, "FP_NAN")
	assert.NotContains(t, macros, "SQUARE")
	assert.NotContains(t, macros, "KERNEL_H")
	assert.Equal(t, int64(3), macros["KERNEL_VERSION"].Int)
	assert.Equal(t, int64(6), macros["TWICE"].Int)
	assert.Equal(t, "kernel", macros["KERNEL_NAME"].Str)

	enums := make(map[string]int64)
	for _, e := range mod.Enums {
		enums[e.Name] = e.Value
	}
	assert.Equal(t, map[string]int64{"KIND_A": 0, "KIND_B": 5, "KIND_C": 6}, enums)

	fns := make(map[string]Function)
	for _, fn := range mod.Functions {
		fns[fn.Name] = fn
	}
	assert.NotContains(t, fns, "hidden")
	require.Contains(t, fns, "load")
	assert.False(t, fns["load"].Conditional)
	assert.Equal(t, []Param{{Name: "path", Type: CType{Base: "ConstSpiceChar", Pointer: 1}}}, fns["load"].Params)
	assert.Empty(t, fns["loaded"].Params)
	assert.Equal(t, "SpiceInt", fns["loaded"].Result.Base)
	assert.True(t, fns["extra"].Conditional)

	tds := make(map[string]CType)
	for _, td := range mod.Typedefs {
		tds[td.Name] = td.Target
	}
	assert.Equal(t, CType{Base: "int"}, tds["SpiceInt"])
	assert.Equal(t, CType{Base: "char", Const: true}, tds["ConstSpiceChar"])
}

func TestTreeSitterMissingInclude(t *testing.T) {
	dir := writeHeaders(t, map[string]string{
		"top.h": "#include \"missing.h\"\nvoid f(void);\n",
		"opt.h": "#ifdef WITH_EXTRA\n#include \"missing.h\"\n#endif\nvoid f(void);\n",
	})
	p := NewTreeSitter()

	_, err := p.Parse(context.Background(), ParseRequest{Header: filepath.Join(dir, "top.h"), Filter: NewIgnoreMacros()})
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 1, berr.Line)

	mod, err := p.Parse(context.Background(), ParseRequest{Header: filepath.Join(dir, "opt.h"), Filter: NewIgnoreMacros()})
	require.NoError(t, err)
	assert.Len(t, mod.Diagnostics, 1)
	assert.Len(t, mod.Functions, 1)
}

func TestTreeSitterMissingHeader(t *testing.T) {
	_, err := NewTreeSitter().Parse(context.Background(), ParseRequest{
		Header: filepath.Join(t.TempDir(), "nope.h"),
		Filter: NewIgnoreMacros(),
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerateFromHeaders(t *testing.T) {
	dir := writeHeaders(t, map[string]string{
		"src/includes/kernel.h": kernelHeader,
		"src/includes/types.h":  typesHeader,
	})
	out := filepath.Join(dir, "spice", "c_kernel.go")

	art, err := Generate(context.Background(), NewTreeSitter(), Options{
		Header:      filepath.Join(dir, "src/includes/kernel.h"),
		IncludeDirs: []string{filepath.Join(dir, "src/includes")},
		Filter:      NewIgnoreMacros("FP_NAN"),
		Package:     "spice",
		LibDirs:     []string{filepath.Join(dir, "build")},
		Libs:        []string{"kernel"},
		Output:      out,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, art.Functions)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func Load(path string) {")
	assert.Contains(t, string(data), "C.load((*C.ConstSpiceChar)(unsafe.Pointer(cPath)))")
	assert.NotContains(t, string(data), "FP_NAN")
}

func TestGenerateLeavesBranchDependentWidthsUnwrapped(t *testing.T) {
	dir := writeHeaders(t, map[string]string{
		"inc/zdf.h": `#ifndef ZDF_H
#define ZDF_H
#if defined(CSPICE_ALPHA_DIGITAL_UNIX) || defined(CSPICE_SUN_SOLARIS_64BIT_NATIVE)
   typedef int SpiceInt;
#else
   typedef long SpiceInt;
#endif
typedef double SpiceDouble;
SpiceInt bodn2c_c(SpiceInt code);
SpiceDouble dpr_c(void);
#endif
`,
	})
	out := filepath.Join(dir, "gen", "c_zdf.go")

	art, err := Generate(context.Background(), NewTreeSitter(), Options{
		Header:      filepath.Join(dir, "inc/zdf.h"),
		IncludeDirs: []string{filepath.Join(dir, "inc")},
		Package:     "zdf",
		Output:      out,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, art.Functions)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Bodn2cC")
	assert.NotContains(t, string(data), "int32")
	assert.Contains(t, string(data), "func DprC() float64 {")
}
