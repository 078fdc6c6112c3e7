// Package guid turns the identifier strings Plex and Trakt attach to titles into canonical
// [models.CanonicalID] values.
//
// # Shapes
//
// Plex exposes identifiers in several shapes. Each recognized shape is a [pattern]; patterns are
// tried in order and the first one that matches wins:
//
//	com.plexapp.agents.imdb://tt0111161?lang=en      legacy agent form
//	com.plexapp.agents.thetvdb://121361?lang=en      legacy agent form
//	imdb://tt0111161  tvdb://121361  tmdb://278      short form (Guid array)
//
// Anything else, such as plex://movie/5d776b59ad5437001f79c6f8, is ignored without error.
//
// # Normalization
//
// IMDB ids always carry a lowercase "tt" prefix. TVDB and TMDB ids keep only their digits.
// Every normalizer is idempotent, so values may be normalized again at comparison time.
//
// # Merging
//
// [Extract] scans strings in the order given. When two strings resolve to the same provider the
// later one replaces the earlier one; callers pass the item's primary guid first and its Guid
// array after it.
package guid
