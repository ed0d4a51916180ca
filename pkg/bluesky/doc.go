// Package bluesky is a small AT Protocol XRPC client covering the calls
// skeeterdeleter makes: session creation, the likes and author feeds, record
// deletion and the repository sync endpoints used for archiving.
//
// Non-2xx responses are decoded from the XRPC error body and returned as
// *errors.Error values, so callers can classify them. An expired access token
// is refreshed once per call. The client never retries or sleeps on its own.
package bluesky
