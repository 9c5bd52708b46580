package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{"gh:someone/cspice", Source{URL: "https://github.com/someone/cspice.git"}},
		{"gh:someone/cspice@main#N0067", Source{URL: "https://github.com/someone/cspice.git", Branch: "main", Revision: "N0067"}},
		{"cb:someone/cspice#12345abc", Source{URL: "https://codeberg.org/someone/cspice.git", Revision: "12345abc"}},
		{"git:https://example.com/naif/cspice", Source{URL: "https://example.com/naif/cspice.git"}},
		{"git:git@example.com:naif/cspice.git", Source{URL: "git@example.com:naif/cspice.git"}},
		{"https://example.com/naif/cspice.git@dev", Source{URL: "https://example.com/naif/cspice.git", Branch: "dev"}},
		{"../cspice", Source{Local: "../cspice"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("https://naif.jpl.nasa.gov/pub/naif/toolkit/C/PC_Linux_GCC_64bit/packages/cspice.tar.Z")
	assert.ErrorIs(t, err, ErrArchive)
}

func TestSourceString(t *testing.T) {
	src, err := Parse("gh:someone/cspice@main#N0067")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/someone/cspice.git@main#N0067", src.String())
	assert.Equal(t, "../cspice", Source{Local: "../cspice"}.String())
}

func TestFetchLocal(t *testing.T) {
	from := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(from, "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(from, "c", "furnsh_c.c"), []byte("void furnsh_c(void) {}\n"), 0o644))

	dest := filepath.Join(t.TempDir(), "src")
	require.NoError(t, Fetch(context.Background(), Source{Local: from}, dest, nil))
	assert.FileExists(t, filepath.Join(dest, "c", "furnsh_c.c"))

	// never overwrites
	assert.Error(t, Fetch(context.Background(), Source{Local: from}, dest, nil))
}

func TestFetchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Fetch(ctx, Source{Local: t.TempDir()}, t.TempDir(), nil), context.Canceled)
}
