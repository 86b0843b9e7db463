// Package distribution governs which distributor sees which document and
// drives the PENDING to DONE lifecycle coupled to notification read state.
package distribution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/authz"
	"github.com/docuport/portal-api/internal/cache"
	"github.com/docuport/portal-api/internal/metrics"
	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/password"
	"github.com/docuport/portal-api/internal/store"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

// Service implements assignment visibility, download authorization, and
// the read/unread notification lifecycle. Ownership is always evaluated
// fresh against the resource store; only the email to distributor-id
// resolution goes through the identity cache.
type Service struct {
	credentials store.CredentialStore
	resources   store.ResourceStore
	idCache     *cache.Cache
	hasher      *password.Hasher
	logger      *logrus.Logger
}

func NewService(credentials store.CredentialStore, resources store.ResourceStore, idCache *cache.Cache, hasher *password.Hasher, logger *logrus.Logger) *Service {
	return &Service{
		credentials: credentials,
		resources:   resources,
		idCache:     idCache,
		hasher:      hasher,
		logger:      logger,
	}
}

// Assign creates a document record and its assignment, plus notification
// rows for the targeted distributors. For ALL-group assignments the rows
// cover only the distributors ACTIVE right now; visibility itself is a
// derived predicate, so distributors provisioned later still see the
// document.
func (s *Service) Assign(ctx context.Context, adminID string, req models.CreateDocumentRequest) (*models.Document, error) {
	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := models.Document{
		DocumentID:  uuid.NewString(),
		Title:       req.Title,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		StorageKey:  req.StorageKey,
		UploadedBy:  adminID,
		CreatedAt:   now,
	}
	assignment := models.Assignment{
		DocumentID:     doc.DocumentID,
		Group:          req.Group,
		DistributorIDs: req.DistributorIDs,
		Status:         models.AssignmentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	notifications := make([]models.Notification, 0, len(targets))
	for _, distributorID := range targets {
		notifications = append(notifications, models.Notification{
			NotificationID: uuid.NewString(),
			DocumentID:     doc.DocumentID,
			DistributorID:  distributorID,
			Read:           false,
			CreatedAt:      now,
		})
	}

	if err := s.resources.CreateDocument(ctx, &doc, &assignment, notifications); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.NewAppError(apperrors.CodeConflict, "Document already exists", err)
		}
		s.logger.WithError(err).Error("Failed to persist document assignment")
		return nil, apperrors.StoreUnavailable(err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.DocumentID,
		"group":       assignment.Group,
		"targets":     len(targets),
	}).Info("Document assigned")

	return &doc, nil
}

func (s *Service) resolveTargets(ctx context.Context, req models.CreateDocumentRequest) ([]string, error) {
	switch req.Group {
	case models.GroupSingle:
		if len(req.DistributorIDs) != 1 {
			return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "SINGLE assignment requires exactly one distributor", nil)
		}
		return req.DistributorIDs, nil
	case models.GroupMultiple:
		if len(req.DistributorIDs) == 0 {
			return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "MULTIPLE assignment requires at least one distributor", nil)
		}
		return req.DistributorIDs, nil
	case models.GroupAll:
		if len(req.DistributorIDs) != 0 {
			return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "ALL assignment must not list distributors", nil)
		}
		distributors, err := s.resources.ListDistributors(ctx)
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		targets := make([]string, 0, len(distributors))
		for _, d := range distributors {
			if d.Status == models.StatusActive {
				targets = append(targets, d.DistributorID)
			}
		}
		return targets, nil
	default:
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "Unknown assignment group", nil)
	}
}

// ListDocuments returns the documents visible to the identity. Admins see
// everything; distributors see ALL-group and own-targeted assignments with
// the derived per-pair state and their unread count.
func (s *Service) ListDocuments(ctx context.Context, identity *models.Identity) ([]models.DocumentView, error) {
	if identity == nil {
		return nil, apperrors.Unauthenticated("")
	}

	records, err := s.resources.ListDocuments(ctx)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	if identity.IsAdmin() {
		views := make([]models.DocumentView, 0, len(records))
		for _, r := range records {
			views = append(views, models.DocumentView{
				Document: r.Document,
				Group:    r.Assignment.Group,
				Status:   r.Assignment.Status,
			})
		}
		return views, nil
	}

	distributorID, err := s.resolveDistributorID(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if distributorID == "" {
		return []models.DocumentView{}, nil
	}

	views := make([]models.DocumentView, 0)
	for _, r := range records {
		if !r.Assignment.Targets(distributorID) {
			continue
		}
		unread, err := s.resources.UnreadCount(ctx, r.Document.DocumentID, distributorID)
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		views = append(views, models.DocumentView{
			Document: r.Document,
			Group:    r.Assignment.Group,
			Status:   r.Assignment.Status,
			State:    pairState(r.Assignment.Status, unread),
			Unread:   unread,
		})
	}
	return views, nil
}

// pairState derives the per-(document, distributor) state from the global
// assignment status and the distributor's own unread rows. The global
// status means "opened by someone" and DONE here means "nothing pending
// for this distributor", not a personal download receipt: an ALL-group
// distributor provisioned after the assignment has no notification rows,
// so their state follows the global flip.
func pairState(status models.AssignmentStatus, unread int) models.DistributionState {
	if status == models.AssignmentDone && unread == 0 {
		return models.StateDone
	}
	return models.StatePending
}

// GetDocument returns metadata for one document, subject to the same
// visibility rules as a download but without firing the transition.
func (s *Service) GetDocument(ctx context.Context, identity *models.Identity, documentID string) (*models.DocumentView, error) {
	if identity == nil {
		return nil, apperrors.Unauthenticated("")
	}

	doc, assignment, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if identity.IsAdmin() {
		return &models.DocumentView{Document: *doc, Group: assignment.Group, Status: assignment.Status}, nil
	}

	distributorID, err := s.resolveDistributorID(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if !authz.RequireOwnership(identity, assignment, distributorID) {
		return nil, apperrors.Forbidden("")
	}

	unread, err := s.resources.UnreadCount(ctx, documentID, distributorID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return &models.DocumentView{
		Document: *doc,
		Group:    assignment.Group,
		Status:   assignment.Status,
		State:    pairState(assignment.Status, unread),
		Unread:   unread,
	}, nil
}

// AuthorizeDownload grants or denies a download. Admins are always
// granted and never fire the transition. An eligible distributor's grant
// applies the PENDING to DONE flip and the read flip of their unread
// notifications as one atomic store operation, exactly once; repeat
// downloads change nothing.
func (s *Service) AuthorizeDownload(ctx context.Context, identity *models.Identity, documentID string) (*models.DownloadGrant, error) {
	if identity == nil {
		metrics.RecordDownload("unauthenticated")
		return nil, apperrors.Unauthenticated("")
	}

	doc, assignment, err := s.loadDocument(ctx, documentID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			metrics.RecordDownload("not_found")
		} else {
			metrics.RecordDownload("error")
		}
		return nil, err
	}

	if identity.IsAdmin() {
		metrics.RecordDownload("granted")
		return &models.DownloadGrant{
			DocumentID: doc.DocumentID,
			FileName:   doc.FileName,
			StorageKey: doc.StorageKey,
			Status:     assignment.Status,
		}, nil
	}

	if !identity.IsDistributor() {
		metrics.RecordDownload("forbidden")
		return nil, apperrors.Forbidden("")
	}

	distributorID, err := s.resolveDistributorID(ctx, identity.Email)
	if err != nil {
		metrics.RecordDownload("error")
		return nil, err
	}
	if !authz.RequireOwnership(identity, assignment, distributorID) {
		metrics.RecordDownload("forbidden")
		return nil, apperrors.Forbidden("")
	}

	status, err := s.resources.CompleteDownload(ctx, documentID, distributorID)
	if err != nil {
		// The file is served only when the side effects committed;
		// a store fault denies the download rather than leaving the
		// transition half-applied.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"document_id":    documentID,
			"distributor_id": distributorID,
		}).Error("Download transition failed")
		metrics.RecordDownload("error")
		return nil, apperrors.StoreUnavailable(err)
	}

	metrics.RecordDownload("granted")
	metrics.RecordNotificationRead("download")

	return &models.DownloadGrant{
		DocumentID: doc.DocumentID,
		FileName:   doc.FileName,
		StorageKey: doc.StorageKey,
		Status:     status,
	}, nil
}

// MarkRead flips one notification to read on behalf of its owning
// distributor. A row owned by a different distributor reports NotFound,
// not Forbidden, so callers cannot probe for existence. Read flags never
// regress.
func (s *Service) MarkRead(ctx context.Context, identity *models.Identity, notificationID string) error {
	if identity == nil {
		return apperrors.Unauthenticated("")
	}

	distributorID, err := s.resolveDistributorID(ctx, identity.Email)
	if err != nil {
		return err
	}
	if distributorID == "" {
		return apperrors.NotFound("Notification")
	}

	notification, err := s.resources.FindNotification(ctx, notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("Notification")
		}
		return apperrors.StoreUnavailable(err)
	}
	if notification.DistributorID != distributorID {
		return apperrors.NotFound("Notification")
	}

	if notification.Read {
		return nil
	}
	if err := s.resources.MarkNotificationRead(ctx, notificationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("Notification")
		}
		return apperrors.StoreUnavailable(err)
	}

	metrics.RecordNotificationRead("explicit")
	return nil
}

// ListNotifications returns the identity's own notification rows
func (s *Service) ListNotifications(ctx context.Context, identity *models.Identity, unreadOnly bool) ([]models.Notification, error) {
	if identity == nil {
		return nil, apperrors.Unauthenticated("")
	}

	distributorID, err := s.resolveDistributorID(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if distributorID == "" {
		return []models.Notification{}, nil
	}

	notifications, err := s.resources.ListNotifications(ctx, distributorID, unreadOnly)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return notifications, nil
}

// canonicalEmail is the lookup and storage form of an email address.
// Every store write, store query, and cache key goes through it so the
// exact-match GSI lookups and the cache agree with the lowercased form
// login uses.
func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ProvisionDistributor creates the credential record and the resource-side
// distributor record for a new account.
func (s *Service) ProvisionDistributor(ctx context.Context, req models.CreateDistributorRequest) (*models.Distributor, error) {
	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "Unusable password", err)
	}

	email := canonicalEmail(req.Email)

	now := time.Now().UTC()
	user := models.User{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		FullName:     req.FullName,
		Role:         models.RoleDistributor,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.credentials.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.NewAppError(apperrors.CodeConflict, "Email already registered", err)
		}
		return nil, apperrors.StoreUnavailable(err)
	}

	distributor := models.Distributor{
		DistributorID: uuid.NewString(),
		UserID:        user.UserID,
		Email:         email,
		CompanyName:   req.CompanyName,
		Status:        models.StatusActive,
		CreatedAt:     now,
	}
	if err := s.resources.CreateDistributor(ctx, &distributor); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.NewAppError(apperrors.CodeConflict, "Distributor already registered", err)
		}
		return nil, apperrors.StoreUnavailable(err)
	}

	// A stale mapping for this email must not survive the write
	s.idCache.Invalidate(email)

	return &distributor, nil
}

// ListDistributors returns every distributor record
func (s *Service) ListDistributors(ctx context.Context) ([]models.Distributor, error) {
	distributors, err := s.resources.ListDistributors(ctx)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return distributors, nil
}

// SetDistributorStatus updates the account status behind a distributor and
// invalidates the cached identity mapping. Sessions minted before the
// change stay valid until their token expires.
func (s *Service) SetDistributorStatus(ctx context.Context, email string, status models.AccountStatus) error {
	email = canonicalEmail(email)

	distributor, err := s.resources.FindDistributorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("Distributor")
		}
		return apperrors.StoreUnavailable(err)
	}

	if err := s.credentials.UpdateUserStatus(ctx, distributor.UserID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("Distributor")
		}
		return apperrors.StoreUnavailable(err)
	}

	s.idCache.Invalidate(email)
	return nil
}

func (s *Service) loadDocument(ctx context.Context, documentID string) (*models.Document, *models.Assignment, error) {
	doc, err := s.resources.FindDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperrors.NotFound("Document")
		}
		return nil, nil, apperrors.StoreUnavailable(err)
	}
	assignment, err := s.resources.FindAssignment(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperrors.NotFound("Document")
		}
		return nil, nil, apperrors.StoreUnavailable(err)
	}
	return doc, assignment, nil
}

// resolveDistributorID maps an identity email to its distributor id,
// consulting the identity cache first and populating it on a store hit.
// An empty id with nil error means the email has no distributor record.
func (s *Service) resolveDistributorID(ctx context.Context, email string) (string, error) {
	email = canonicalEmail(email)

	if id, ok := s.idCache.Get(email); ok {
		return id, nil
	}

	distributor, err := s.resources.FindDistributorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", apperrors.StoreUnavailable(err)
	}

	s.idCache.Set(email, distributor.DistributorID)
	return distributor.DistributorID, nil
}
