// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"clustersql/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var dbinfoTable string

// dbinfoCmd shows the resolved connection (password masked) and the tables
// of the bound schema.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the current connection and the tables of its schema",
	Long: `The dbinfo command connects with the current settings, prints the resolved
connection with the password masked, and lists the tables of the bound
schema. With --table it describes one table's columns instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAdapter(ctx, connectionConfig())
		if err != nil {
			logging.PresentErrorBox(err)
			return printedError{err}
		}
		defer a.Disconnect(ctx)

		desc := a.Descriptor()
		lines := []string{
			"Host:    " + desc.Host,
			"User:    " + desc.Username,
			"Schema:  " + desc.Schema,
			"Cache:   " + desc.CacheName(),
			fmt.Sprintf("TLS:     %t", desc.TLSEnabled),
			"Mappers: " + strings.Join(desc.MapperDirs, ", "),
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Cluster Connection")).
			WithPadding(1).
			Println(strings.Join(lines, "\n"))
		pterm.Println()

		if dbinfoTable != "" {
			info, err := a.TableInfo(ctx, dbinfoTable)
			if err != nil {
				return err
			}
			pk := make(map[string]bool, len(info.PrimaryKeyCols))
			for _, c := range info.PrimaryKeyCols {
				pk[c] = true
			}
			data := pterm.TableData{{"Column", "Type", "Nullable", "Default", "PK"}}
			for _, c := range info.Columns {
				mark := ""
				if pk[c.Name] {
					mark = "✓"
				}
				data = append(data, []string{c.Name, c.Type, fmt.Sprint(c.Nullable), c.Default, mark})
			}
			pterm.DefaultSection.Println(info.Schema + "." + info.Name)
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		}

		tables, err := a.Tables(ctx)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			pterm.Println("No tables in schema " + desc.Schema)
			return nil
		}
		items := make([]pterm.BulletListItem, len(tables))
		for i, t := range tables {
			items[i] = pterm.BulletListItem{Level: 0, Text: t}
		}
		pterm.DefaultSection.Printfln("Tables (%d)", len(tables))
		return pterm.DefaultBulletList.WithItems(items).Render()
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
	dbinfoCmd.Flags().StringVar(&dbinfoTable, "table", "", "describe one table ([schema.]table)")
}
