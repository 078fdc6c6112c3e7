// Package models defines the domain values and persistence interfaces shared by plexsync packages.
//
// The package contains two categories of types:
//
// 1. Sync values: read-only data built fresh for every sync pass and never stored
//   - [Provider] and [CanonicalID] : a normalized external identifier (IMDB, TVDB, TMDB)
//   - [IDSet] : at most one identifier per provider for one title
//   - [MediaItem] : a movie, show or episode in the Plex library
//   - [TrackedItem] : a watched, rated or collected Trakt record
//   - [Library] : a Plex library section
//
// 2. Persistent Entities: database-backed models with full lifecycle management
//   - [SyncRun] : one entry of the rolling sync history
//
// Persistent entities implement [Model]; [Repository] defines the CRUD operations for them.
package models
