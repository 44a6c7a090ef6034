package storage

import (
	"context"

	"github.com/slok/clockin/internal/model"
)

// Repository is the interface for the companion local persistence.
// Getters return model.ErrNotFound when nothing has been stored.
//
//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository
type Repository interface {
	GetCredentials(ctx context.Context) (*model.Credentials, error)
	SaveCredentials(ctx context.Context, c model.Credentials) error
	DeleteCredentials(ctx context.Context) error

	// GetSession returns the last persisted session snapshot.
	GetSession(ctx context.Context) (*model.ActiveSession, error)
	SaveSession(ctx context.Context, s model.ActiveSession) error
	DeleteSession(ctx context.Context) error

	GetPendingState(ctx context.Context) (*model.PendingTasksState, error)
	SavePendingState(ctx context.Context, s model.PendingTasksState) error
}
