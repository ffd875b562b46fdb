// Command gencategories writes the Unicode general category table used to
// number \p{...} extensions.
package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"unicode"

	"github.com/dave/jennifer/jen"
	"github.com/spf13/pflag"
)

func main() {
	out := pflag.StringP("output", "o", "categories_gen.go", "output file")
	pkg := pflag.String("package", "extcode", "package name of the generated file")
	pflag.Parse()

	if err := generate(*pkg).Save(*out); err != nil {
		fmt.Fprintf(os.Stderr, "gencategories: %v\n", err)
		os.Exit(1)
	}
}

// generate builds the table. Ids follow the sorted category names and must
// fit in the one-byte extension argument.
func generate(pkg string) *jen.File {
	names := slices.Sorted(maps.Keys(unicode.Categories))
	if len(names) > 256 {
		panic(fmt.Sprintf("%d categories do not fit in a byte", len(names)))
	}

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by gencategories; DO NOT EDIT.")

	f.Comment("categoryNames lists the Unicode general categories by id.")
	f.Var().Id("categoryNames").Op("=").Index(jen.Op("...")).String().ValuesFunc(func(g *jen.Group) {
		for _, name := range names {
			g.Line().Lit(name)
		}
		g.Line()
	})

	f.Comment("categoryTables holds the range table of each entry in categoryNames.")
	f.Var().Id("categoryTables").Op("=").Index(jen.Op("...")).Op("*").Qual("unicode", "RangeTable").ValuesFunc(func(g *jen.Group) {
		for _, name := range names {
			g.Line().Qual("unicode", name)
		}
		g.Line()
	})
	return f
}
