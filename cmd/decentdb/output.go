package main

import (
	"encoding/json"
	"fmt"
	"os"

	decentdb "github.com/sphildreth/decentdb-sub007"
	"github.com/sphildreth/decentdb-sub007/internal/dberrors"
	"github.com/sphildreth/decentdb-sub007/internal/record"
)

// result is the JSON error payload of spec.md §6.3:
// {ok, error: {code, message, context}, rows}.
type result struct {
	OK    bool        `json:"ok"`
	Error *resultErr  `json:"error,omitempty"`
	Rows  interface{} `json:"rows,omitempty"`
}

type resultErr struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// exitCode maps a dberrors.Code to spec.md §6.3's process exit codes:
// 0 success, 1 user/SQL error, 2 I/O error, 3 corruption, 4 transaction
// aborted.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var code dberrors.Code
	if dbErr, ok := err.(*dberrors.Error); ok {
		code = dbErr.Code
	} else {
		code = dberrors.CodeInternal
	}
	switch code {
	case dberrors.CodeSQL:
		return 1
	case dberrors.CodeIO:
		return 2
	case dberrors.CodeCorruption:
		return 3
	case dberrors.CodeTransaction:
		return 4
	default:
		return 1
	}
}

func printResult(rows interface{}, err error) {
	r := result{OK: err == nil, Rows: rows}
	if err != nil {
		if dbErr, ok := err.(*dberrors.Error); ok {
			r.Error = &resultErr{Code: dbErr.Code.String(), Message: dbErr.Message, Context: dbErr.Context}
		} else {
			r.Error = &resultErr{Code: dberrors.CodeInternal.String(), Message: err.Error()}
		}
	}
	buf, _ := json.MarshalIndent(r, "", "  ")
	fmt.Println(string(buf))
}

func fail(err error) {
	printResult(nil, err)
	os.Exit(exitCode(err))
}

func mustOpen(path string) *decentdb.Db {
	db, err := decentdb.OpenDb(path, decentdb.DefaultOptions())
	if err != nil {
		fail(err)
	}
	return db
}

// valueJSON renders a record.Value as a plain JSON-friendly value,
// matching the CLI's stable `rows` shape rather than dumping the
// internal Value struct's every field.
func valueJSON(v record.Value) interface{} {
	switch v.Kind {
	case record.Null:
		return nil
	case record.Int64:
		return v.I64
	case record.Float64:
		return v.F64
	case record.Bool:
		return v.Bool
	case record.Text:
		return v.Text
	case record.Blob:
		return v.Blob
	case record.Decimal:
		return fmt.Sprintf("%d/%d", v.DecimalUnscaled, v.DecimalScale)
	case record.Uuid:
		return v.UUID.String()
	default:
		return nil
	}
}

func columnTypeName(k record.Kind) string {
	switch k {
	case record.Null:
		return "NULL"
	case record.Int64:
		return "INT64"
	case record.Float64:
		return "FLOAT64"
	case record.Bool:
		return "BOOL"
	case record.Text:
		return "TEXT"
	case record.Blob:
		return "BLOB"
	case record.Decimal:
		return "DECIMAL"
	case record.Uuid:
		return "UUID"
	default:
		return "UNKNOWN"
	}
}
