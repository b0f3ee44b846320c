// Package exporter writes aggregate result tables.
//
// CSVWriter is the low-level writer: headers, records and an optional UTF-8
// BOM so that spreadsheet tools detect the encoding.
//
// ResultExporter renders a ResultTable as CSV or JSON. Limit and check
// columns appear only when the rows were evaluated against a tolerance
// configuration. Numbers are written with six decimals; undefined values
// (a single-sample standard deviation, limits of an unmatched row) are empty
// cells in CSV and null in JSON.
//
//	exp := exporter.NewResultExporter(outDir, logger)
//	path, err := exp.Export(exporter.ResultTable{Unit: unit, Rows: rows}, "crunch_results", exporter.FormatCSV)
package exporter
