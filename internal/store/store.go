// Package store defines the persistence boundary. The auth and
// distribution subsystems consume these interfaces; everything behind
// them (DynamoDB in production, memory in tests) is a collaborator.
package store

import (
	"context"
	"errors"

	"github.com/docuport/portal-api/internal/models"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("store: not found")

	// ErrConflict indicates a uniqueness violation on write
	ErrConflict = errors.New("store: already exists")
)

// CredentialStore persists user accounts and password digests.
// The auth subsystem never writes passwords; provisioning does.
type CredentialStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserStatus(ctx context.Context, userID string, status models.AccountStatus) error
}

// DocumentRecord pairs a document with its assignment
type DocumentRecord struct {
	Document   models.Document
	Assignment models.Assignment
}

// ResourceStore persists documents, assignments, distributors, and
// notifications. CompleteDownload is the one transactional unit: the
// assignment status flip and the notification read flips for a
// (document, distributor) pair are applied together or not at all.
type ResourceStore interface {
	CreateDocument(ctx context.Context, doc *models.Document, assignment *models.Assignment, notifications []models.Notification) error
	FindDocument(ctx context.Context, documentID string) (*models.Document, error)
	FindAssignment(ctx context.Context, documentID string) (*models.Assignment, error)
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)

	CreateDistributor(ctx context.Context, distributor *models.Distributor) error
	FindDistributorByEmail(ctx context.Context, email string) (*models.Distributor, error)
	ListDistributors(ctx context.Context) ([]models.Distributor, error)

	ListNotifications(ctx context.Context, distributorID string, unreadOnly bool) ([]models.Notification, error)
	FindNotification(ctx context.Context, notificationID string) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
	UnreadCount(ctx context.Context, documentID, distributorID string) (int, error)

	// CompleteDownload atomically marks the assignment DONE and flips every
	// unread notification for (documentID, distributorID) to read. It is
	// idempotent: repeat calls leave the same final state.
	CompleteDownload(ctx context.Context, documentID, distributorID string) (models.AssignmentStatus, error)
}
