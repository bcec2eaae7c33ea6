// Command decentdb is a thin CLI over the storage core (spec.md §6.3):
// it owns process lifecycle and argument parsing, not SQL semantics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	decentdb "github.com/sphildreth/decentdb-sub007"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "decentdb",
		Short: "decentdb embedded storage engine CLI",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the database file")

	root.AddCommand(
		execCmd(),
		checkpointCmd(),
		rebuildIndexCmd(),
		bulkLoadCmd(),
		listTablesCmd(),
		describeCmd(),
		dbInfoCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireDB() {
	if dbPath == "" {
		fail(fmt.Errorf("--db is required"))
	}
}

func checkpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "run a WAL checkpoint against --db",
		Run: func(cmd *cobra.Command, args []string) {
			requireDB()
			db := mustOpen(dbPath)
			defer decentdb.CloseDb(db)
			if err := db.Checkpoint(); err != nil {
				fail(err)
			}
			printResult(nil, nil)
		},
	}
}

func rebuildIndexCmd() *cobra.Command {
	var indexName string
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "rebuild one index from its table's current rows",
		Run: func(cmd *cobra.Command, args []string) {
			requireDB()
			if indexName == "" {
				fail(fmt.Errorf("--index is required"))
			}
			db := mustOpen(dbPath)
			defer decentdb.CloseDb(db)
			if err := db.RebuildIndex(indexName); err != nil {
				fail(err)
			}
			printResult(nil, nil)
		},
	}
	cmd.Flags().StringVar(&indexName, "index", "", "index name to rebuild")
	return cmd
}

func listTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-tables",
		Short: "list every table in --db",
		Run: func(cmd *cobra.Command, args []string) {
			requireDB()
			db := mustOpen(dbPath)
			defer decentdb.CloseDb(db)
			tables, err := db.ListTables()
			if err != nil {
				fail(err)
			}
			names := make([]string, len(tables))
			for i, t := range tables {
				names[i] = t.Name
			}
			printResult(names, nil)
		},
	}
}

func describeCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "describe one table's columns and indexes",
		Run: func(cmd *cobra.Command, args []string) {
			requireDB()
			if table == "" {
				fail(fmt.Errorf("--table is required"))
			}
			db := mustOpen(dbPath)
			defer decentdb.CloseDb(db)

			def, found, err := db.DescribeTable(table)
			if err != nil {
				fail(err)
			}
			if !found {
				fail(fmt.Errorf("no such table: %s", table))
			}
			indexes, err := db.ListIndexesForTable(table)
			if err != nil {
				fail(err)
			}

			type columnInfo struct {
				Name     string `json:"name"`
				Type     string `json:"type"`
				Nullable bool   `json:"nullable"`
				PK       bool   `json:"pk"`
				Unique   bool   `json:"unique"`
			}
			type indexInfo struct {
				Name    string   `json:"name"`
				Columns []string `json:"columns"`
				Unique  bool     `json:"unique"`
			}
			cols := make([]columnInfo, len(def.Columns))
			for i, c := range def.Columns {
				cols[i] = columnInfo{Name: c.Name, Type: columnTypeName(c.Type), Nullable: c.Nullable, PK: c.PK, Unique: c.Unique}
			}
			idxs := make([]indexInfo, len(indexes))
			for i, idx := range indexes {
				idxs[i] = indexInfo{Name: idx.Name, Columns: idx.Columns, Unique: idx.Unique}
			}
			printResult(map[string]interface{}{
				"table":   table,
				"columns": cols,
				"indexes": idxs,
			}, nil)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table to describe")
	return cmd
}

func dbInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbinfo",
		Short: "print database header and pager statistics",
		Run: func(cmd *cobra.Command, args []string) {
			requireDB()
			db := mustOpen(dbPath)
			defer decentdb.CloseDb(db)
			printResult(db.DbInfo(), nil)
		},
	}
}
