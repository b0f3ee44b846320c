// Package tolerance owns the reference/tolerance table that the aggregation
// engine joins onto its rows.
//
// The table is keyed by (test value, range setting, I/O type) and persisted as
// JSON or YAML:
//
//	{
//	  "unit": "V",
//	  "configurations": [
//	    {"test_value": -2.5, "range_setting": "10V", "io_type": "Output",
//	     "range_input": "10V", "reference": "-2,5", "tolerance": "0.015"}
//	  ]
//	}
//
// Reference and tolerance are strings and accept a decimal comma. A
// range_input of "" or "N/A" leaves the displayed range unchanged.
package tolerance
