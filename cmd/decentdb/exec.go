package main

import (
	"github.com/spf13/cobra"

	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
)

// execCmd implements spec.md §6.3's `exec --db=... --sql=...`. The SQL
// layer that parses and plans statements is explicitly outside this
// module's scope (spec.md §1 non-goals: no cost-based optimization, no
// query planner here) — this subcommand exists so the CLI's surface
// matches spec.md, and reports the one honest answer available without
// a wired SQL layer rather than silently no-opping.
func execCmd() *cobra.Command {
	var sql string
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "execute a SQL statement against --db",
		Run: func(cmd *cobra.Command, args []string) {
			requireDB()
			if sql == "" {
				fail(dberrors.New(dberrors.CodeSQL, "--sql is required"))
			}
			fail(dberrors.New(dberrors.CodeSQL, "no SQL layer is wired into this build; decentdb's core only exposes row/DDL operations directly (see storage.Engine)"))
		},
	}
	cmd.Flags().StringVar(&sql, "sql", "", "SQL statement to execute")
	return cmd
}
