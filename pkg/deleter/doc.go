// Package deleter runs one cleanup pass over a Bluesky account.
//
// A run loads the saved cursors, archives the account when enabled, then walks
// the likes feed and the author feed page by page. Each page is classified by
// the retention policy, the resulting actions are confirmed and applied, and
// the cursor is saved before the next page is requested. A failure therefore
// leaves the state at the last fully processed page.
//
// Each feed stops when its page budget is spent, its floor cursor is reached
// or the feed runs out. The returned Summary tells which of these happened.
package deleter
