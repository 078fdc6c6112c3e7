// Package services defines the [Library] and [Tracker] interfaces the sync engine works against
// and implements them for Plex and Trakt.
//
// # Plex
//
// [PlexService] talks to a Plex Media Server with an X-Plex-Token. Library sections are read
// one page at a time through [PlexService.Items], an iterator, so a large section is never held
// in memory. Show sections yield the show followed by its episodes (from allLeaves); every
// episode carries the show's identifiers, which is how Trakt identifies episodes too.
//
// # Trakt
//
// [TraktService] uses [oauth2] for the authorization code flow. The out-of-band redirect
// (urn:ietf:wg:oauth:2.0:oob) shows the user a PIN to paste back; any other redirect is served
// by the local callback handler. Expired tokens are refreshed by the token source and every new
// token is written back through the [TokenStore]. Requests are paced with a [rate.Limiter].
//
// Bulk writes ([TraktService.AddToHistory], [TraktService.AddToCollection]) send movies with
// their identifier block and episodes grouped as shows[].seasons[].episodes[]. The returned
// [BulkResult] reports what Trakt actually added, which may be less than what was sent.
//
// # Error Handling
//
// Clients wrap errors with sentinels from the shared package:
//   - [shared.ErrNotAuthenticated] : no token saved, or Authenticate not called
//   - [shared.ErrTokenExpired] : token expired with no refresh token
//   - [shared.ErrRefreshFailed] : refreshing the token failed
//   - [shared.ErrAuthFailed] : the service answered 401
//   - [shared.ErrServiceUnavailable] : transport failures, 429 and 5xx responses
//   - [shared.ErrAPIRequest] : any other non-2xx response
//
// Reads are retried with the [retry.Retrier] passed in the options. Writes are not retried here;
// the sync engine decides how to retry mutations.
package services
