// Package files finds the measurement files of a batch.
//
// Discovery lists .txt, .csv, .xlsx and .xlsm files directly inside a
// directory, sorted by name so that batches are reproducible. Office lock
// files, hidden files and files matching an excluded prefix (the batch's own
// result tables) are skipped.
package files
