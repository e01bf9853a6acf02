// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"clustersql/cli/internal/logging"
	"clustersql/cli/internal/mapper"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	statementsShow   string
	statementsParams []string
)

// statementsCmd lists or renders mapper statements without contacting the
// cluster.
var statementsCmd = &cobra.Command{
	Use:   "statements [namespace]",
	Short: "List the named statements of the mapper directory",
	Long: `The statements command loads the configured mapper directories and lists
every namespace with its statements and their kind. No connection is made.

With --show namespace.id the statement is rendered with the given --param
values and the resulting SQL is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mapper.New(cfg.MapperDir...)
		if err != nil {
			return err
		}

		if statementsShow != "" {
			ns, id, ok := strings.Cut(statementsShow, ".")
			if !ok {
				return errors.New("--show expects namespace.id")
			}
			params, err := parseParams(statementsParams)
			if err != nil {
				return err
			}
			sql, err := m.Statement(ns, id, params)
			if err != nil {
				logging.PresentErrorBox(err)
				return printedError{err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), sql)
			return nil
		}

		namespaces := m.Namespaces()
		if len(args) == 1 {
			namespaces = []string{args[0]}
		}
		data := pterm.TableData{{"Namespace", "Statement", "Kind"}}
		for _, ns := range namespaces {
			ids := m.Statements(ns)
			if len(ids) == 0 {
				return &mapper.TemplateError{Reason: mapper.UnknownNamespace, Namespace: ns}
			}
			for _, id := range ids {
				data = append(data, []string{ns, id, m.Kind(ns, id)})
			}
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(statementsCmd)
	statementsCmd.Flags().StringVar(&statementsShow, "show", "", "render one statement (namespace.id)")
	statementsCmd.Flags().StringArrayVarP(&statementsParams, "param", "p", nil, "statement parameter key=value (repeatable)")
}
