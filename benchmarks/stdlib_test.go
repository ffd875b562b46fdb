package benchmarks_test

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/KromDaniel/rejit/pkg/rejit"
)

var cases = []struct {
	name    string
	pattern string
	inputs  []string
}{
	{
		name:    "DateCapture",
		pattern: `(?P<year>\d{4})-(?P<month>\d{2})-(?P<day>\d{2})`,
		inputs:  []string{"Dates: 2024-01-15 and 2024-12-25", "no dates here", "1999-12-31"},
	},
	{
		name:    "EmailCapture",
		pattern: `(?P<user>[\w\.+-]+)@(?P<domain>[\w\.-]+)\.(?P<tld>[\w\.-]+)`,
		inputs:  []string{"contact: user.name+tag@example.co.uk today", "nobody@home"},
	},
	{
		name:    "URLCapture",
		pattern: `(?P<protocol>https?)://(?P<host>[\w\.-]+)(?::(?P<port>\d+))?(?P<path>/[\w\./]*)?`,
		inputs:  []string{"see https://example.com:8080/path/to/file.html now", "ftp://example.com"},
	},
	{
		name:    "Greedy",
		pattern: `(?:(?:a|b)|(?:k)+)*abcd`,
		inputs:  []string{"abkkkababcd", "abkkkabab"},
	},
	{
		name:    "Lazy",
		pattern: `(?:(?:a|b)|(?:k)+)+?abcd`,
		inputs:  []string{"abkkkababcd", "abcd"},
	},
	{
		name:    "Pathological",
		pattern: `(?P<outer>(?P<inner>a+)+)b`,
		inputs:  []string{"aaaaaaaaaab", strings.Repeat("a", 40)},
	},
	{
		name:    "NestedWord",
		pattern: `(?P<words>(?P<word>\w+\s*)+)end`,
		inputs:  []string{"hello world foo end", "no terminator"},
	},
	{
		name:    "LogParser",
		pattern: `(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})(?:\.(?P<ms>\d{3}))?(?P<tz>Z|[+-]\d{2}:\d{2})?\s+\[(?P<level>\w+)\]\s+(?P<message>.+)`,
		inputs:  []string{"2024-01-15T10:30:00.123Z [INFO] Server started", "garbage"},
	},
	{
		name:    "SemVer",
		pattern: `(?P<major>\d+)\.(?P<minor>\d+)\.(?P<patch>\d+)(?:-(?P<prerelease>[\w.-]+))?(?:\+(?P<build>[\w.-]+))?`,
		inputs:  []string{"v1.2.3-beta.1+build.5", "1.2"},
	},
	{
		name:    "Letters",
		pattern: `\pL+`,
		inputs:  []string{"12 héllo wörld", "1234"},
	},
}

func engines(tb testing.TB, pattern string) map[string]*rejit.Regexp {
	tb.Helper()
	native, err := rejit.Compile(pattern)
	if err != nil {
		tb.Fatalf("Compile(%q): %v", pattern, err)
	}
	interp, err := rejit.New(rejit.Options{Pattern: pattern, DisableJIT: true})
	if err != nil {
		tb.Fatalf("New(%q): %v", pattern, err)
	}
	tb.Cleanup(func() { native.Close() })
	return map[string]*rejit.Regexp{"rejit": native, "rejit_interp": interp}
}

func TestMatchesStdlib(t *testing.T) {
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			std := regexp.MustCompile(tc.pattern)
			for engine, re := range engines(t, tc.pattern) {
				for _, input := range tc.inputs {
					want := std.FindStringSubmatchIndex(input)
					got := re.FindSubmatchIndex([]byte(input), rejit.Unanchored)
					if !slices.Equal(want, got) {
						t.Errorf("%s on %q = %v, stdlib %v", engine, input, got, want)
					}
				}
			}
		})
	}
}

func BenchmarkMatch(b *testing.B) {
	for _, tc := range cases {
		std := regexp.MustCompile(tc.pattern)
		res := engines(b, tc.pattern)
		for i, input := range tc.inputs {
			text := []byte(input)
			b.Run(fmt.Sprintf("%s/golang_std_%d", tc.name, i), func(b *testing.B) {
				b.ReportAllocs()
				for b.Loop() {
					std.FindSubmatchIndex(text)
				}
			})
			for engine, re := range res {
				slots := make([]int, 2*(re.NumSubexp()+1))
				b.Run(fmt.Sprintf("%s/%s_%d", tc.name, engine, i), func(b *testing.B) {
					b.ReportAllocs()
					for b.Loop() {
						re.Match(text, rejit.Unanchored, slots)
					}
				})
			}
		}
	}
}
