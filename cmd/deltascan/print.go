package main

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/fatih/color"

	"github.com/grafana/deltascan/pkg/scan"
)

// printSchema prints the table schema as a tree. Partition columns are
// marked.
func printSchema(w io.Writer, schema *arrow.Schema, partitions *scan.PartitionDirectory) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "Schema:")

	fields := schema.Fields()
	for i, f := range fields {
		suffix := ""
		if partitions.Contains(f.Name) {
			suffix = " (partition)"
		}
		printField(w, "", f, i == len(fields)-1, suffix)
	}
	fmt.Fprintln(w)
}

func printField(w io.Writer, indent string, f arrow.Field, last bool, suffix string) {
	branch, next := "├─ ", "│  "
	if last {
		branch, next = "└─ ", "   "
	}

	nullable := ""
	if !f.Nullable {
		nullable = " not null"
	}
	fmt.Fprintf(w, "%s%s%s: %s%s%s\n", indent, branch, f.Name, typeName(f.Type), nullable, suffix)

	if st, ok := f.Type.(*arrow.StructType); ok {
		children := st.Fields()
		for i, child := range children {
			printField(w, indent+next, child, i == len(children)-1, "")
		}
	}
}

func typeName(dt arrow.DataType) string {
	if _, ok := dt.(*arrow.StructType); ok {
		return "struct"
	}
	return dt.String()
}

// printRecord prints every column of rec as "name:  [values]". A positive
// limit prints only the first limit rows.
func printRecord(w io.Writer, rec arrow.Record, limit int) {
	if rec == nil || rec.NumCols() == 0 {
		fmt.Fprintln(w, "[No data]")
		return
	}

	rows := rec.NumRows()
	if limit > 0 && int64(limit) < rows {
		rows = int64(limit)
	}

	for i, col := range rec.Columns() {
		slice := array.NewSlice(col, 0, rows)
		fmt.Fprintf(w, "%s:  %s\n", rec.ColumnName(i), slice)
		slice.Release()
	}
	if rows < rec.NumRows() {
		fmt.Fprintf(w, "(%d of %d rows)\n", rows, rec.NumRows())
	}
}
