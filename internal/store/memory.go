package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docuport/portal-api/internal/models"
)

// Memory is an in-memory store used by tests and local development.
// A single mutex guards every table, which also gives CompleteDownload
// its atomicity.
type Memory struct {
	mu            sync.Mutex
	users         map[string]models.User // keyed by user id
	distributors  map[string]models.Distributor
	documents     map[string]models.Document
	assignments   map[string]models.Assignment // keyed by document id
	notifications map[string]models.Notification
}

var (
	_ CredentialStore = (*Memory)(nil)
	_ ResourceStore   = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]models.User),
		distributors:  make(map[string]models.Distributor),
		documents:     make(map[string]models.Document),
		assignments:   make(map[string]models.Assignment),
		notifications: make(map[string]models.Notification),
	}
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrConflict
		}
	}
	m.users[user.UserID] = *user
	return nil
}

func (m *Memory) UpdateUserStatus(_ context.Context, userID string, status models.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

func (m *Memory) CreateDocument(_ context.Context, doc *models.Document, assignment *models.Assignment, notifications []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.documents[doc.DocumentID]; exists {
		return ErrConflict
	}
	m.documents[doc.DocumentID] = *doc
	m.assignments[assignment.DocumentID] = *assignment
	for _, n := range notifications {
		m.notifications[n.NotificationID] = n
	}
	return nil
}

func (m *Memory) FindDocument(_ context.Context, documentID string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (m *Memory) FindAssignment(_ context.Context, documentID string) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) ListDocuments(_ context.Context) ([]DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]DocumentRecord, 0, len(m.documents))
	for id, doc := range m.documents {
		a, ok := m.assignments[id]
		if !ok {
			continue
		}
		records = append(records, DocumentRecord{Document: doc, Assignment: a})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Document.CreatedAt.After(records[j].Document.CreatedAt)
	})
	return records, nil
}

func (m *Memory) CreateDistributor(_ context.Context, distributor *models.Distributor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.distributors {
		if strings.EqualFold(d.Email, distributor.Email) {
			return ErrConflict
		}
	}
	m.distributors[distributor.DistributorID] = *distributor
	return nil
}

func (m *Memory) FindDistributorByEmail(_ context.Context, email string) (*models.Distributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.distributors {
		if strings.EqualFold(d.Email, email) {
			dist := d
			return &dist, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListDistributors(_ context.Context) ([]models.Distributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Distributor, 0, len(m.distributors))
	for _, d := range m.distributors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Memory) ListNotifications(_ context.Context, distributorID string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Notification, 0)
	for _, n := range m.notifications {
		if n.DistributorID != distributorID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindNotification(_ context.Context, notificationID string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[notificationID]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[notificationID]
	if !ok {
		return ErrNotFound
	}
	if !n.Read {
		now := time.Now().UTC()
		n.Read = true
		n.ReadAt = &now
		m.notifications[notificationID] = n
	}
	return nil
}

func (m *Memory) UnreadCount(_ context.Context, documentID, distributorID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.notifications {
		if n.DocumentID == documentID && n.DistributorID == distributorID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CompleteDownload(_ context.Context, documentID, distributorID string) (models.AssignmentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[documentID]
	if !ok {
		return "", ErrNotFound
	}

	// Both mutations happen under one lock hold: a reader never observes
	// the status flipped with the notifications still unread.
	if a.Status == models.AssignmentPending {
		a.Status = models.AssignmentDone
		a.UpdatedAt = time.Now().UTC()
		m.assignments[documentID] = a
	}

	now := time.Now().UTC()
	for id, n := range m.notifications {
		if n.DocumentID == documentID && n.DistributorID == distributorID && !n.Read {
			n.Read = true
			n.ReadAt = &now
			m.notifications[id] = n
		}
	}

	return a.Status, nil
}
