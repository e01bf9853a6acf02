// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	errs "clustersql/cli/internal/errors"
	"clustersql/cli/internal/logging"
	"clustersql/cli/internal/sqlexec"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	queryParams []string
	queryJSON   bool
)

// queryCmd runs one named statement and prints every row.
var queryCmd = &cobra.Command{
	Use:   "query <namespace> <id>",
	Short: "Run a named statement and print its rows",
	Long: `The query command connects, renders the statement namespace.id from the
mapper directory with the given parameters, runs it and prints the complete
result set.

Parameter values are read as YAML scalars: 42 is a number, true a boolean,
[1, 2] a list and 'quoted' a string.

  clustersql query person findById -p id=7
  clustersql query person findByIds -p 'ids=[1, 2, 3]' --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		params, err := parseParams(queryParams)
		if err != nil {
			return err
		}

		a, err := openAdapter(ctx, connectionConfig())
		if err != nil {
			return reportQueryError(out, err)
		}
		defer a.Disconnect(ctx)

		res, err := a.ExecuteQuery(ctx, args[0], args[1], params)
		if err != nil {
			return reportQueryError(out, err)
		}
		if queryJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		return renderResult(out, res)
	},
}

// reportQueryError prints err as {"error","kind"} in JSON mode and as an
// error box otherwise.
func reportQueryError(w io.Writer, err error) error {
	if queryJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]string{
			"error": logging.Mask(err.Error()),
			"kind":  string(errs.KindOf(err)),
		})
		return printedError{err}
	}
	logging.PresentErrorBox(err)
	return printedError{err}
}

// renderResult prints res as a table followed by the row count.
func renderResult(w io.Writer, res *sqlexec.Result) error {
	if len(res.Columns) > 0 {
		data := pterm.TableData{res.Columns}
		for _, row := range res.Rows() {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = formatCell(v)
			}
			data = append(data, cells)
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, table)
	}
	noun := "rows"
	if res.RowCount() == 1 {
		noun = "row"
	}
	fmt.Fprintf(w, "(%d %s)\n", res.RowCount(), noun)
	return nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("\\x%x", t)
	}
	return fmt.Sprint(v)
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "statement parameter key=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the result as JSON")
}
