// Package tui provides the terminal user interface for batch
// verification.
//
// This package contains a read-only board that displays one row per
// template while a batch runs:
//   - Queued templates waiting for a worker
//   - Running templates with a spinner and elapsed time
//   - Finished templates with their verdict, duration, and the first
//     failing diagnostic
//
// The board is read-only; users can only quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, board := tui.NewProgram([]string{"go-service", "py-lib"})
//	go program.Run()
//
//	// Send progress updates
//	program.Send(tui.RunStartedMsg{Template: "go-service"})
//	program.Send(tui.RunFinishedMsg{Template: "go-service", Result: res})
//
//	// Signal completion
//	program.Send(tui.BatchDoneMsg{Overall: overall})
//
// After BatchDoneMsg the board stays on screen so the verdicts can be
// read, until the user quits.
package tui
