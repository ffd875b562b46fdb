package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMatchCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"unanchored", []string{"match", "x", "uvwxyz"}, []string{"\"uvwxyz\"\t[3 4]"}},
		{"anchored", []string{"match", "--anchor", "start", "x", "uvwxyz"}, []string{"\"uvwxyz\"\tno match"}},
		{"groups", []string{"match", "(a)(b)", "ab"}, []string{"[0 2 0 1 1 2]"}},
		{"fewer groups", []string{"match", "--groups", "0", "(a)(b)", "ab"}, []string{"\"ab\"\t[0 2]\n"}},
		{"last group", []string{"match", "(?P<x>y)", "zy"}, []string{"[1 2 1 2]\tlast=x"}},
		{"backref", []string{"match", `(cat|dog)\1`, "dogdog", "catdog"}, []string{"[0 6 0 3]", "\"catdog\"\tno match"}},
		{"interpreter", []string{"--no-jit", "match", `\pL+`, "12ab"}, []string{"[2 4]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", tt.args...)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestMatchStdin(t *testing.T) {
	out, err := execute(t, "aa\nb\n", "match", "a+")
	require.NoError(t, err)
	assert.Equal(t, "\"aa\"\t[0 2]\n\"b\"\tno match\n", out)
}

func TestRewriteCommand(t *testing.T) {
	out, err := execute(t, "", "rewrite", `a\pL`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `"a\U000f00`), out)

	_, err = execute(t, "", "rewrite", `\300`)
	assert.Error(t, err)
}

func TestDumpCommand(t *testing.T) {
	out, err := execute(t, "", "dump", `(?P<w>\pL)\1`)
	require.NoError(t, err)
	assert.Contains(t, out, "1 groups")
	assert.Contains(t, out, "engine: ")
	assert.Contains(t, out, "group 1: w")

	out, err = execute(t, "", "--no-jit", "dump", `a`)
	require.NoError(t, err)
	assert.Contains(t, out, "engine: interpreter")
}

func TestMetricsFlag(t *testing.T) {
	out, err := execute(t, "", "--metrics", "--no-jit", "match", "a", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "rejit_match_total")
	assert.Contains(t, out, `rejit_compile_total{result="interpreter"}`)

	out, err = execute(t, "", "match", "a", "a")
	require.NoError(t, err)
	assert.NotContains(t, out, "rejit_match_total")
}

func TestConfiguration(t *testing.T) {
	_, err := execute(t, "", "--log-level", "loud", "match", "a", "a")
	assert.ErrorContains(t, err, "invalid log-level")

	_, err = execute(t, "", "--log-fmt", "xml", "match", "a", "a")
	assert.ErrorContains(t, err, "invalid log-fmt")

	_, err = execute(t, "", "match", "(", "a")
	assert.Error(t, err)

	cfg := filepath.Join(t.TempDir(), "rejit.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("anchor: both\nlog-fmt: json\n"), 0o644))
	out, err := execute(t, "", "--config", cfg, "match", "a", "ab", "a")
	require.NoError(t, err)
	assert.Equal(t, "\"ab\"\tno match\n\"a\"\t[0 1]\n", out)

	_, err = execute(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "match", "a", "a")
	assert.ErrorContains(t, err, "reading config")

	t.Setenv("REJIT_MAX_THREADS", "-1")
	_, err = execute(t, "", "match", "a", "a")
	assert.ErrorContains(t, err, "max threads")
}
