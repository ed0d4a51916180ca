package deleter

import (
	"context"

	"skeeterdeleter/pkg/actions"
	"skeeterdeleter/pkg/archive"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/models"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/state"
	"skeeterdeleter/pkg/walker"
)

// Source provides the account's feeds and removes its records
type Source interface {
	actions.Mutator
	Likes() walker.PageFetcher
	Posts() walker.PageFetcher
}

// Archiver snapshots the account before anything is deleted
type Archiver interface {
	Run(ctx context.Context, snap archive.Snapshot) (*archive.Manifest, error)
}

// Observer is told about every processed page
type Observer interface {
	PageProcessed(page *models.Page, result actions.Result, kept int)
}

// Account identifies the logged in account
type Account struct {
	DID    string
	Handle string
}

// Deps are the collaborators of a Deleter. Confirmer is required unless the
// run is auto-confirmed; Archiver and Observer are optional.
type Deps struct {
	Source    Source
	Store     *state.Store
	Confirmer actions.Confirmer
	Archiver  Archiver
	Account   Account
	Observer  Observer
	Clock     ratelimit.Clock
	Logger    logger.Logger
}
