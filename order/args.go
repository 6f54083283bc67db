// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package order

import (
	"flag"
	"io"
	"strings"

	"github.com/creachadair/flax"
)

// Args describe the item requested by an order.
type Args struct {
	Name     string // coffee: cappuccino, latte, frappe; chocolate: optional
	Quantity int    `flag:"quantity,default=1,Number of items to order"`
	Milk     bool   `flag:"milk,Add milk (coffee only)"`
	Size     string `flag:"size,default=regular,Drink size (small or regular or large)"`
	Shade    string `flag:"shade,default=dark,Chocolate shade (dark or white)"`
	Takeaway bool   `flag:"takeaway,Order to take away"`
}

// ParseArgs parses the arguments of an order for the given item kind, in the
// form a peer types them:
//
//	latte -milk -size large -quantity 2
//	-shade white -takeaway
//
// The first non-flag argument is the name of the item, and flags may appear
// before or after it. Invalid arguments are reported as an error of concrete
// type *InvalidOrderError.
func ParseArgs(kind string, argv []string) (Args, error) {
	switch kind {
	case KindCoffee, KindChocolate:
	default:
		return Args{}, invalidf("Could not order %q", kind)
	}

	fs := flag.NewFlagSet("order "+kind, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var args Args
	flax.MustBind(fs, &args)

	var pos []string
	for rest := argv; ; {
		if err := fs.Parse(rest); err != nil {
			return Args{}, invalidf("order %s: %v\n%s", kind, err, usage(fs))
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		pos, rest = append(pos, rest[0]), rest[1:]
	}

	switch {
	case len(pos) > 1:
		return Args{}, invalidf("order %s: extra arguments %q", kind, pos[1:])
	case len(pos) == 1:
		args.Name = pos[0]
	case kind == KindCoffee:
		return Args{}, invalidf("order %s: missing name\n%s", kind, usage(fs))
	}
	return args, nil
}

func usage(fs *flag.FlagSet) string {
	var sb strings.Builder
	sb.WriteString("Usage: " + fs.Name() + " <name> [flags]\n")
	fs.SetOutput(&sb)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	return sb.String()
}
