// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	dvcgo "github.com/noi-techpark/dvcgo"
	"github.com/noi-techpark/dvcgo/format"
	"github.com/noi-techpark/dvcgo/validate"
)

var (
	docPath string
	wdir    string
)

func main() {
	root := &cobra.Command{
		Use:   "dvcgo",
		Short: "Resolve and inspect dvc.yaml-style pipeline documents",
	}
	root.PersistentFlags().StringVarP(&docPath, "file", "f", "dvc.yaml", "pipeline document to read")
	root.PersistentFlags().StringVar(&wdir, "wdir", ".", "working directory the document is relative to")

	root.AddCommand(newResolveCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newListCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadDocument() (map[string]any, error) {
	f, err := os.Open(docPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := format.NewRegistry().Load(docPath, f)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a mapping at the top level, got %T", docPath, raw)
	}
	return m, nil
}

func loadResolver() (*dvcgo.DataResolver, error) {
	m, err := loadDocument()
	if err != nil {
		return nil, err
	}
	doc := dvcgo.DocumentFromMap(m)
	return dvcgo.NewDataResolver(dvcgo.LocalFS{}, format.NewRegistry(), docPath, wdir, doc, dvcgo.NewDefaultLogger())
}

func newResolveCmd() *cobra.Command {
	var whereExpr string
	var queryExpr string

	cmd := &cobra.Command{
		Use:   "resolve [stage...]",
		Short: "Resolve one or more stages (default: every stage) to their final field values",
		RunE: func(cmd *cobra.Command, args []string) error {
			dr, err := loadResolver()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names, err = dr.GetKeys()
				if err != nil {
					return err
				}
			}

			if whereExpr != "" {
				names, err = filterWhere(dr, names, whereExpr)
				if err != nil {
					return err
				}
			}

			out := make(map[string]any, len(names))
			for _, name := range names {
				one, err := dr.ResolveOne(name)
				if err != nil {
					return fmt.Errorf("resolving '%s': %w", name, err)
				}
				out[name] = one[name]
			}

			var result any = out
			if queryExpr != "" {
				result, err = applyQuery(queryExpr, out)
				if err != nil {
					return err
				}
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&whereExpr, "where", "", "expr-lang boolean expression filtering stages by name/parent before resolving")
	cmd.Flags().StringVar(&queryExpr, "query", "", "gojq filter applied to the resolved output")
	return cmd
}

// filterWhere keeps only the stage names that satisfy expression, evaluated
// with `name` (the full name), `parent` (the part before the last '@') and
// `stage` (the declared stage name: the parent for a generated member, else
// the name itself) bound in its environment.
func filterWhere(dr *dvcgo.DataResolver, names []string, expression string) ([]string, error) {
	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("--where: %w", err)
	}

	var kept []string
	for _, name := range names {
		parent, _, hasSuffix := dvcgo.SplitGroupName(name)
		lookup := name
		if hasSuffix {
			lookup = parent
		}
		env := map[string]any{"name": name, "parent": parent, "stage": lookup}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("--where: %w", err)
		}
		if ok, _ := out.(bool); ok {
			kept = append(kept, name)
		}
	}
	return kept, nil
}

func applyQuery(queryExpr string, data any) (any, error) {
	q, err := gojq.Parse(queryExpr)
	if err != nil {
		return nil, fmt.Errorf("--query: %w", err)
	}
	iter := q.Run(data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("--query: %w", err)
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the document's shape without resolving anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadDocument()
			if err != nil {
				return err
			}
			errs := validate.ValidateDocument(m)
			if len(errs) == 0 {
				fmt.Println("ok")
				return nil
			}
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			return fmt.Errorf("%d validation error(s)", len(errs))
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every concrete stage name, including generated foreach/matrix members",
		RunE: func(cmd *cobra.Command, args []string) error {
			dr, err := loadResolver()
			if err != nil {
				return err
			}
			names, err := dr.GetKeys()
			if err != nil {
				return err
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
