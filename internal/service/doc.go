// Package service runs a batch of scans.
//
// Overview
// Run reads the input file, starts one scan engine process per pending
// row and writes the reports once every process is gone.
//
// Data flow:
//
//	input.Open ---> parallel.Map (at most N jobs) ---> engine.Manager.Scan
//	                                                       |
//	                                          records via engine.Sink
//	                                                       v
//	report.Generator <--- Flatten <--- aggregate.Aggregator
//
// Invariants:
//   - a job is identified by the line index of its input row, reports find
//     the row by the same index
//   - a failing job never stops the others
//   - every failed job has at least one error record
//   - report errors are logged, they do not fail an otherwise finished run
package service
