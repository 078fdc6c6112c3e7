// Package ui implements an interactive terminal view of a sync run using bubbletea's Elm architecture.
//
// The TUI moves through three views:
//  1. [ConfirmView] : Review the run options and toggle dry run or two-way mode
//  2. [SyncView] : Watch engine state and live counters while the run progresses
//  3. [ResultView] : Final statistics, the error if the run failed, and planned writes for a dry run
//
// The [Model] implements Init/Update/View, receiving messages via the [Msg] union type.
// Progress updates flow through a channel from the engine; the engine never blocks on a slow view.
package ui
