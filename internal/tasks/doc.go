// Package tasks reconciles watched state, ratings and collection membership between a Plex
// library and Trakt, reporting progress as it goes.
//
// # Passes
//
// [Engine.Run] authenticates with the tracker, resolves the library filter and then runs one
// pass per (library, direction):
//
//   - [Pull] fetches Trakt watched history and ratings, streams the library and marks or rates
//     each matched item in Plex, one call per item.
//   - [Push] fetches Trakt watched history (and the collection when enabled), streams the
//     library and submits unsynced items to Trakt in batches of [Options.BatchSize].
//
// Two-way runs pull then push for each library, so the push pass sees what the pull pass wrote.
//
// # Errors
//
// Configuration, authentication and fetch-phase failures end the run in the [Failed] state.
// Individual write failures are counted in [SyncStats.Errors] and the run continues. A failed
// ratings or collection fetch only disables that feature for the pass.
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent on an optional channel with select/default, so a slow or absent
// reader never stalls a run. The last update of every run is [Completed] or [Failed].
//
// # Dry Run
//
// With [Options.DryRun] no writes are made. Each intended write is logged, counted in
// [SyncStats.Planned] and returned in [Result.Planned].
package tasks
