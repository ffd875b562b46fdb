package main

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/KromDaniel/rejit/internal/extcode"
	"github.com/KromDaniel/rejit/pkg/rejit"
)

func newMatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match PATTERN [TEXT...]",
		Short: "Match each TEXT, or each line of stdin, against PATTERN",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := a.compile(args[0])
			if err != nil {
				return err
			}
			defer re.Close()

			anchor, err := rejit.ParseAnchor(a.v.GetString("anchor"))
			if err != nil {
				return err
			}
			groups := a.v.GetInt("groups")
			if groups < 0 {
				groups = re.NumSubexp()
			}

			w := cmd.OutOrStdout()
			if len(args) > 1 {
				for _, text := range args[1:] {
					printMatch(w, re, text, anchor, groups)
				}
				return nil
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				printMatch(w, re, sc.Text(), anchor, groups)
			}
			return sc.Err()
		},
	}
	fs := cmd.Flags()
	fs.String("anchor", "none", "anchoring: none, start or both")
	fs.Int("groups", -1, "groups to report besides the whole match, -1 for all")
	_ = a.v.BindPFlags(fs)
	return cmd
}

func printMatch(w io.Writer, re *rejit.Regexp, text string, anchor rejit.Anchor, groups int) {
	slots := make([]int, 2*(groups+1))
	if !re.MatchString(text, anchor, slots) {
		fmt.Fprintf(w, "%q\tno match\n", text)
		return
	}
	fmt.Fprintf(w, "%q\t%v", text, slots)
	if name := re.LastGroup(slots); name != "" {
		fmt.Fprintf(w, "\tlast=%s", name)
	}
	fmt.Fprintln(w)
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump PATTERN",
		Short: "Print the automaton, extensions and analysis of PATTERN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := a.compile(args[0])
			if err != nil {
				return err
			}
			defer re.Close()

			w := cmd.OutOrStdout()
			if err := re.Dump(w); err != nil {
				return err
			}
			if re.Native() {
				fmt.Fprintf(w, "engine: native, %s code, %s stack per match\n",
					humanize.IBytes(uint64(re.CodeSize())), humanize.IBytes(uint64(re.StackSize())))
			} else {
				fmt.Fprintf(w, "engine: interpreter (%v)\n", re.JITError())
			}
			named := re.NamedGroups()
			for _, i := range slices.Sorted(maps.Keys(named)) {
				fmt.Fprintf(w, "group %d: %s\n", i, named[i])
			}
			return nil
		},
	}
}

func newRewriteCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite PATTERN",
		Short: "Print PATTERN with extensions encoded as private-use codepoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := extcode.Rewrite(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.QuoteToASCII(out))
			return nil
		},
	}
}
