package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/dbx"
	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/objects"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/flaxvault/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StagingDir:          t.TempDir(),
		S3MainBucket:        "main",
		S3TempBucket:        "temp",
		DownloadURLValidity: 900 * time.Second,
	}
}

var nop = logging.NewNopLogger()

// memStore is an in-memory stand-in for the three tables.
type memStore struct {
	mu      sync.Mutex
	objects map[string]*models.Object
	perms   map[[2]string]*models.Permission
	users   map[string]*models.User
	// enqueued holds the last enqueue time per object; CreatedAt stands in
	// until the first MarkEnqueued.
	enqueued map[string]time.Time

	createObjectErr     error
	createPermissionErr error
	listErr             error
	clock               time.Time
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string]*models.Object),
		perms:    make(map[[2]string]*models.Permission),
		users:    make(map[string]*models.User),
		enqueued: make(map[string]time.Time),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(id, email string) {
	s.users[email] = &models.User{ID: id, Email: email, CreatedAt: s.tick()}
}

func (s *memStore) addObject(o *models.Object) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.tick()
	}
	s.objects[o.ID] = o
	s.perms[[2]string{o.OwnerID, o.ID}] = &models.Permission{UserID: o.OwnerID, ObjectID: o.ID, Capabilities: models.OwnerCapabilities()}
}

func clone(o *models.Object) *models.Object {
	c := *o
	if o.Content != nil {
		content := *o.Content
		c.Content = &content
	}
	return &c
}

type fakeObjects struct {
	objects.Repository
	s *memStore
}

func (f *fakeObjects) Create(ctx context.Context, o *models.Object) (*models.Object, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createObjectErr != nil {
		return nil, f.s.createObjectErr
	}
	if _, ok := f.s.objects[o.ID]; ok {
		return nil, common.ErrAlreadyExists
	}
	o.CreatedAt = f.s.tick()
	f.s.objects[o.ID] = clone(o)
	return o, nil
}

func (f *fakeObjects) Lookup(ctx context.Context, id string) (*models.Object, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.objects[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(o), nil
}

func (f *fakeObjects) GetByID(ctx context.Context, id string) (*models.Object, error) {
	o, err := f.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.State == models.Eliminated {
		return nil, common.ErrNotFound
	}
	return o, nil
}

func (f *fakeObjects) move(id string, from []models.Lifecycle, to models.Lifecycle) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.objects[id]
	if !ok {
		return common.ErrNotFound
	}
	for _, st := range from {
		if o.State == st {
			o.State = to
			now := f.s.tick()
			o.UpdatedAt = &now
			return nil
		}
	}
	return common.ErrConflict
}

func (f *fakeObjects) Trash(ctx context.Context, id string) error {
	return f.move(id, []models.Lifecycle{models.Active}, models.Trashed)
}

func (f *fakeObjects) Restore(ctx context.Context, id string) error {
	return f.move(id, []models.Lifecycle{models.Trashed}, models.Active)
}

func (f *fakeObjects) Eliminate(ctx context.Context, id string) error {
	return f.move(id, []models.Lifecycle{models.Active, models.Trashed}, models.Eliminated)
}

func (f *fakeObjects) filter(keep func(o *models.Object) bool) ([]*models.Object, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listErr != nil {
		return nil, f.s.listErr
	}
	res := make([]*models.Object, 0)
	for _, o := range f.s.objects {
		if keep(o) {
			res = append(res, clone(o))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeObjects) ListOwn(ctx context.Context, ownerID string, parentID *string, page models.Page) ([]*models.Object, error) {
	return f.filter(func(o *models.Object) bool {
		return o.OwnerID == ownerID && sameParent(o.ParentID, parentID) && o.State == models.Active
	})
}

func (f *fakeObjects) ListShared(ctx context.Context, userID string, parentID *string, page models.Page) ([]*models.Object, error) {
	return f.filter(func(o *models.Object) bool {
		p, ok := f.s.perms[[2]string{userID, o.ID}]
		return ok && p.Capabilities.Read && o.OwnerID != userID && o.State == models.Active &&
			(parentID == nil || sameParent(o.ParentID, parentID))
	})
}

func (f *fakeObjects) ListTrash(ctx context.Context, ownerID string, page models.Page) ([]*models.Object, error) {
	return f.filter(func(o *models.Object) bool {
		return o.OwnerID == ownerID && o.State == models.Trashed
	})
}

func (f *fakeObjects) MarkEnqueued(ctx context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if o, ok := f.s.objects[id]; ok && o.Content != nil && o.Content.UploadStatus == models.UploadPending {
		f.s.enqueued[id] = f.s.tick()
	}
	return nil
}

func (f *fakeObjects) ListPending(ctx context.Context, before time.Time, limit int) ([]*models.Object, error) {
	res, err := f.filter(func(o *models.Object) bool {
		at, ok := f.s.enqueued[o.ID]
		if !ok {
			at = o.CreatedAt
		}
		return o.Content != nil && o.Content.UploadStatus == models.UploadPending &&
			o.State != models.Eliminated && at.Before(before)
	})
	if err == nil && len(res) > limit {
		res = res[:limit]
	}
	return res, err
}

type fakePermissions struct {
	permissions.Repository
	s *memStore
}

func (f *fakePermissions) Create(ctx context.Context, p *models.Permission) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createPermissionErr != nil {
		return f.s.createPermissionErr
	}
	k := [2]string{p.UserID, p.ObjectID}
	if _, ok := f.s.perms[k]; ok {
		return common.ErrAlreadyExists
	}
	p.CreatedAt = f.s.tick()
	cp := *p
	f.s.perms[k] = &cp
	return nil
}

func (f *fakePermissions) Get(ctx context.Context, userID, objectID string) (*models.Permission, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.perms[[2]string{userID, objectID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePermissions) Delete(ctx context.Context, userID, objectID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	k := [2]string{userID, objectID}
	if _, ok := f.s.perms[k]; !ok {
		return common.ErrNotFound
	}
	delete(f.s.perms, k)
	return nil
}

func (f *fakePermissions) ListByObject(ctx context.Context, objectID string) ([]*models.Grant, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	emails := map[string]string{}
	for _, u := range f.s.users {
		emails[u.ID] = u.Email
	}
	res := make([]*models.Grant, 0)
	for k, p := range f.s.perms {
		if k[1] == objectID {
			res = append(res, &models.Grant{UserID: p.UserID, Email: emails[p.UserID], Capabilities: p.Capabilities, CreatedAt: p.CreatedAt})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

type fakeUsers struct {
	users.Repository
	s *memStore
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

type fakeRepoManager struct {
	s *memStore
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository           { return &fakeUsers{s: m.s} }
func (m *fakeRepoManager) Objects(db dbx.DBTX) objects.Repository       { return &fakeObjects{s: m.s} }
func (m *fakeRepoManager) Permissions(db dbx.DBTX) permissions.Repository {
	return &fakePermissions{s: m.s}
}

type publishedEvent struct {
	kind models.ActorKind
	ev   models.UploadEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) PublishUpload(ctx context.Context, kind models.ActorKind, ev models.UploadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{kind: kind, ev: ev})
	return nil
}
