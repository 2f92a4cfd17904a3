package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/dannyswat/vctree"
	"github.com/dannyswat/vctree/query"
)

const Version = "0.1.0"

const usage = `Tree diff and patch tool.

Usage:
    vctree diff <old> <new> [--author=<author>] [--v=<level>]
    vctree patch <base> <delta> [--watch=<type>...] [--v=<level>]
    vctree -h | --help
    vctree --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --author=<author>    Author recorded in the delta [default: vctree].
    --watch=<type>       Report the number of <type> elements as the patch applies.
    --v=<level>          Log verbosity.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	if v, err := opts.String("--v"); err == nil && v != "" {
		flag.Set("v", v)
	}
	defer glog.Flush()

	if diff_, _ := opts.Bool("diff"); diff_ {
		err = diff(opts, os.Stdout)
	} else if patch_, _ := opts.Bool("patch"); patch_ {
		err = patch(opts, os.Stdout, os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func parseFile(s *vctree.Store, path string) (*vctree.Node, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vctree.ParseHTMLInto(s, string(b))
}

func diff(opts docopt.Opts, out io.Writer) error {
	oldPath, _ := opts.String("<old>")
	newPath, _ := opts.String("<new>")
	author, _ := opts.String("--author")

	oldDoc, err := parseFile(vctree.NewStore(vctree.DefaultOptions()), oldPath)
	if err != nil {
		return err
	}
	newDoc, err := parseFile(vctree.NewStore(vctree.DefaultOptions()), newPath)
	if err != nil {
		return err
	}
	delta, err := vctree.Diff(oldDoc, newDoc, author)
	if err != nil {
		return err
	}
	glog.Infof("[diff]%s: %d operations\n", delta.ID, len(delta.Operations))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(delta)
}

// patch applies the delta to the base document and writes the result to out.
// Watch reports go to report.
func patch(opts docopt.Opts, out, report io.Writer) error {
	basePath, _ := opts.String("<base>")
	deltaPath, _ := opts.String("<delta>")

	doc, err := parseFile(vctree.NewStore(vctree.DefaultOptions()), basePath)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(deltaPath)
	if err != nil {
		return err
	}
	var delta vctree.Delta
	if err := json.Unmarshal(b, &delta); err != nil {
		return fmt.Errorf("failed to decode delta: %w", err)
	}

	ctx := query.NewContext(doc, nil)
	watches, _ := opts["--watch"].([]string)
	for _, typ := range watches {
		e := query.Count(query.Descendant(query.Root(), typ))
		l := &query.ListenerFuncs{
			OnChange: func(e query.Expr, _ *query.Context, value, old any) {
				fmt.Fprintf(report, "%s: %s -> %s\n", e, query.StringValue(old), query.StringValue(value))
			},
		}
		if err := e.Bind(ctx, l); err != nil {
			return err
		}
		defer e.Unbind(ctx, l)
	}

	if err := vctree.Patch(doc, &delta); err != nil {
		return err
	}
	html, err := vctree.RenderNode(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, html)
	return err
}
