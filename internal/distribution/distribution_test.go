package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/docuport/portal-api/internal/cache"
	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/password"
	"github.com/docuport/portal-api/internal/store"
	apperrors "github.com/docuport/portal-api/pkg/errors"
)

type fixture struct {
	svc   *Service
	mem   *store.Memory
	cache *cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	mem := store.NewMemory()
	idCache := cache.New(5*time.Minute, 0)
	t.Cleanup(idCache.Stop)

	return &fixture{
		svc:   NewService(mem, mem, idCache, password.NewHasher(bcrypt.MinCost), logger),
		mem:   mem,
		cache: idCache,
	}
}

func (f *fixture) provision(t *testing.T, email, company string) *models.Distributor {
	t.Helper()

	d, err := f.svc.ProvisionDistributor(context.Background(), models.CreateDistributorRequest{
		Email:       email,
		Password:    "distributor-pass",
		FullName:    "Distributor " + company,
		CompanyName: company,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) assign(t *testing.T, group models.AssignedGroup, distributorIDs ...string) *models.Document {
	t.Helper()

	doc, err := f.svc.Assign(context.Background(), "usr-admin", models.CreateDocumentRequest{
		Title:          "Price List",
		FileName:       "prices.pdf",
		ContentType:    "application/pdf",
		SizeBytes:      2048,
		StorageKey:     "documents/prices.pdf",
		Group:          group,
		DistributorIDs: distributorIDs,
	})
	require.NoError(t, err)
	return doc
}

func distributorIdentity(email string) *models.Identity {
	return &models.Identity{
		UserID: "usr-" + email,
		Email:  email,
		Role:   models.RoleDistributor,
		Status: models.StatusActive,
	}
}

func adminIdentity() *models.Identity {
	return &models.Identity{
		UserID: "usr-admin",
		Email:  "admin@example.com",
		Role:   models.RoleAdmin,
		Status: models.StatusActive,
	}
}

func TestAssign_GroupValidation(t *testing.T) {
	f := newFixture(t)
	d := f.provision(t, "one@example.com", "One")

	tests := []struct {
		name    string
		group   models.AssignedGroup
		targets []string
		wantErr bool
	}{
		{"single with one target", models.GroupSingle, []string{d.DistributorID}, false},
		{"single with no target", models.GroupSingle, nil, true},
		{"multiple with no targets", models.GroupMultiple, nil, true},
		{"all with explicit targets", models.GroupAll, []string{d.DistributorID}, true},
		{"all without targets", models.GroupAll, nil, false},
		{"unknown group", models.AssignedGroup("SOME"), nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Assign(context.Background(), "usr-admin", models.CreateDocumentRequest{
				Title:          "Doc",
				FileName:       "doc.pdf",
				Group:          tc.group,
				DistributorIDs: tc.targets,
			})
			if tc.wantErr {
				assert.Equal(t, apperrors.CodeBadRequest, apperrors.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthorizeDownload_SingleAssignment(t *testing.T) {
	f := newFixture(t)
	assignee := f.provision(t, "assignee@example.com", "Assignee")
	f.provision(t, "other@example.com", "Other")
	doc := f.assign(t, models.GroupSingle, assignee.DistributorID)

	// The assignee is granted
	grant, err := f.svc.AuthorizeDownload(context.Background(), distributorIdentity("assignee@example.com"), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDone, grant.Status)
	assert.Equal(t, "documents/prices.pdf", grant.StorageKey)

	// A different distributor is forbidden
	_, err = f.svc.AuthorizeDownload(context.Background(), distributorIdentity("other@example.com"), doc.DocumentID)
	assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))

	// No session at all is unauthenticated
	_, err = f.svc.AuthorizeDownload(context.Background(), nil, doc.DocumentID)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
}

func TestAuthorizeDownload_AllGroupGrantsEveryDistributor(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "a@example.com", "A")
	f.provision(t, "b@example.com", "B")
	doc := f.assign(t, models.GroupAll)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := f.svc.AuthorizeDownload(context.Background(), distributorIdentity(email), doc.DocumentID)
		assert.NoError(t, err, "distributor %s should be granted", email)
	}
}

func TestAuthorizeDownload_AllGroupIncludesLaterDistributors(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "early@example.com", "Early")
	doc := f.assign(t, models.GroupAll)

	// Provisioned after the assignment: visibility is derived, so the
	// new distributor is still granted even without a notification row.
	f.provision(t, "late@example.com", "Late")

	grant, err := f.svc.AuthorizeDownload(context.Background(), distributorIdentity("late@example.com"), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDone, grant.Status)

	notifications, err := f.svc.ListNotifications(context.Background(), distributorIdentity("late@example.com"), false)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestAuthorizeDownload_AdminAlwaysGrantedWithoutTransition(t *testing.T) {
	f := newFixture(t)
	d := f.provision(t, "assignee@example.com", "Assignee")
	doc := f.assign(t, models.GroupSingle, d.DistributorID)

	grant, err := f.svc.AuthorizeDownload(context.Background(), adminIdentity(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPending, grant.Status, "admin download must not fire the transition")

	assignment, err := f.mem.FindAssignment(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPending, assignment.Status)

	unread, err := f.svc.ListNotifications(context.Background(), distributorIdentity("assignee@example.com"), true)
	require.NoError(t, err)
	assert.Len(t, unread, 1, "the assignee's notification stays unread")
}

func TestAuthorizeDownload_UnknownDocumentIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "a@example.com", "A")

	_, err := f.svc.AuthorizeDownload(context.Background(), distributorIdentity("a@example.com"), "missing-doc")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = f.svc.AuthorizeDownload(context.Background(), adminIdentity(), "missing-doc")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err), "non-existence reports 404 regardless of role")
}

func TestDownload_SideEffectsAreAtomicAndIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.provision(t, "a@example.com", "A")
	b := f.provision(t, "b@example.com", "B")
	doc := f.assign(t, models.GroupMultiple, a.DistributorID, b.DistributorID)

	ctx := context.Background()

	// First download by A: status flips, A's notification flips with it
	_, err := f.svc.AuthorizeDownload(ctx, distributorIdentity("a@example.com"), doc.DocumentID)
	require.NoError(t, err)

	assignment, err := f.mem.FindAssignment(ctx, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDone, assignment.Status)

	unreadA, err := f.svc.ListNotifications(ctx, distributorIdentity("a@example.com"), true)
	require.NoError(t, err)
	assert.Empty(t, unreadA)

	// B has not downloaded yet: B's notification is still unread
	unreadB, err := f.svc.ListNotifications(ctx, distributorIdentity("b@example.com"), true)
	require.NoError(t, err)
	assert.Len(t, unreadB, 1)

	// Second download by B: status stays DONE, B's notification flips,
	// A's already-read rows stay read
	_, err = f.svc.AuthorizeDownload(ctx, distributorIdentity("b@example.com"), doc.DocumentID)
	require.NoError(t, err)

	unreadB, err = f.svc.ListNotifications(ctx, distributorIdentity("b@example.com"), true)
	require.NoError(t, err)
	assert.Empty(t, unreadB)

	allA, err := f.svc.ListNotifications(ctx, distributorIdentity("a@example.com"), false)
	require.NoError(t, err)
	require.Len(t, allA, 1)
	assert.True(t, allA[0].Read, "read flags never regress")

	// Repeat download by A changes nothing
	_, err = f.svc.AuthorizeDownload(ctx, distributorIdentity("a@example.com"), doc.DocumentID)
	require.NoError(t, err)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	a := f.provision(t, "a@example.com", "A")
	b := f.provision(t, "b@example.com", "B")
	f.assign(t, models.GroupMultiple, a.DistributorID, b.DistributorID)

	ctx := context.Background()

	notifications, err := f.svc.ListNotifications(ctx, distributorIdentity("a@example.com"), true)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	noteID := notifications[0].NotificationID

	// A foreign distributor marking A's notification sees NotFound, not
	// Forbidden, so existence is not confirmed
	err = f.svc.MarkRead(ctx, distributorIdentity("b@example.com"), noteID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	// The owner flips it, and a second flip is a no-op
	require.NoError(t, f.svc.MarkRead(ctx, distributorIdentity("a@example.com"), noteID))
	require.NoError(t, f.svc.MarkRead(ctx, distributorIdentity("a@example.com"), noteID))

	all, err := f.svc.ListNotifications(ctx, distributorIdentity("a@example.com"), false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)

	err = f.svc.MarkRead(ctx, distributorIdentity("a@example.com"), "missing-note")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestListDocuments_Scoping(t *testing.T) {
	f := newFixture(t)
	a := f.provision(t, "a@example.com", "A")
	f.provision(t, "b@example.com", "B")

	targeted := f.assign(t, models.GroupSingle, a.DistributorID)
	broadcast := f.assign(t, models.GroupAll)

	ctx := context.Background()

	adminViews, err := f.svc.ListDocuments(ctx, adminIdentity())
	require.NoError(t, err)
	assert.Len(t, adminViews, 2)

	aViews, err := f.svc.ListDocuments(ctx, distributorIdentity("a@example.com"))
	require.NoError(t, err)
	assert.Len(t, aViews, 2)
	for _, v := range aViews {
		assert.Equal(t, models.StatePending, v.State)
		assert.Equal(t, 1, v.Unread)
	}

	bViews, err := f.svc.ListDocuments(ctx, distributorIdentity("b@example.com"))
	require.NoError(t, err)
	require.Len(t, bViews, 1)
	assert.Equal(t, broadcast.DocumentID, bViews[0].Document.DocumentID)

	// After A downloads the targeted document its pair state is DONE
	_, err = f.svc.AuthorizeDownload(ctx, distributorIdentity("a@example.com"), targeted.DocumentID)
	require.NoError(t, err)

	aViews, err = f.svc.ListDocuments(ctx, distributorIdentity("a@example.com"))
	require.NoError(t, err)
	for _, v := range aViews {
		if v.Document.DocumentID == targeted.DocumentID {
			assert.Equal(t, models.StateDone, v.State)
			assert.Equal(t, 0, v.Unread)
		}
	}
}

func TestListDocuments_RowlessDistributorFollowsGlobalFlip(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "early@example.com", "Early")
	doc := f.assign(t, models.GroupAll)

	ctx := context.Background()

	// Someone opens the broadcast; a distributor provisioned afterwards
	// has no notification rows, so nothing is pending for them and their
	// derived state reads DONE
	_, err := f.svc.AuthorizeDownload(ctx, distributorIdentity("early@example.com"), doc.DocumentID)
	require.NoError(t, err)
	f.provision(t, "late@example.com", "Late")

	views, err := f.svc.ListDocuments(ctx, distributorIdentity("late@example.com"))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, models.StateDone, views[0].State)
	assert.Equal(t, 0, views[0].Unread)
}

func TestResolveDistributorID_PopulatesCacheOnMiss(t *testing.T) {
	f := newFixture(t)
	d := f.provision(t, "cached@example.com", "Cached")

	ctx := context.Background()

	id, err := f.svc.resolveDistributorID(ctx, "cached@example.com")
	require.NoError(t, err)
	assert.Equal(t, d.DistributorID, id)

	cached, ok := f.cache.Get("cached@example.com")
	assert.True(t, ok)
	assert.Equal(t, d.DistributorID, cached)

	id, err = f.svc.resolveDistributorID(ctx, "unknown@example.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSetDistributorStatus_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "flip@example.com", "Flip")

	ctx := context.Background()

	_, err := f.svc.resolveDistributorID(ctx, "flip@example.com")
	require.NoError(t, err)
	_, ok := f.cache.Get("flip@example.com")
	require.True(t, ok)

	require.NoError(t, f.svc.SetDistributorStatus(ctx, "flip@example.com", models.StatusInactive))

	_, ok = f.cache.Get("flip@example.com")
	assert.False(t, ok, "status writes must invalidate the cached mapping")

	err = f.svc.SetDistributorStatus(ctx, "nobody@example.com", models.StatusInactive)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestEmailCanonicalization_AcrossWritesAndCache(t *testing.T) {
	f := newFixture(t)

	// Mixed-case provisioning stores the canonical form, so exact-match
	// store lookups find it with the lowercased form login uses
	d := f.provision(t, "Flip@Example.com", "Flip")
	assert.Equal(t, "flip@example.com", d.Email)

	user, err := f.mem.FindUserByEmail(context.Background(), "flip@example.com")
	require.NoError(t, err)
	assert.Equal(t, "flip@example.com", user.Email)

	ctx := context.Background()

	// Resolution through a mixed-case identity email lands on the
	// canonical cache key
	id, err := f.svc.resolveDistributorID(ctx, "Flip@Example.com")
	require.NoError(t, err)
	assert.Equal(t, d.DistributorID, id)
	_, ok := f.cache.Get("flip@example.com")
	require.True(t, ok)

	// A status write addressed by any casing invalidates that entry
	require.NoError(t, f.svc.SetDistributorStatus(ctx, "FLIP@example.COM", models.StatusInactive))
	_, ok = f.cache.Get("flip@example.com")
	assert.False(t, ok, "status write must invalidate the cached mapping for this record")
}

func TestProvisionDistributor_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	f.provision(t, "dup@example.com", "First")

	_, err := f.svc.ProvisionDistributor(context.Background(), models.CreateDistributorRequest{
		Email:       "dup@example.com",
		Password:    "distributor-pass",
		FullName:    "Second",
		CompanyName: "Second",
	})
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
}
