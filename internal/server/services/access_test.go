package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccessFixture(t *testing.T) (*AccessService, *memStore) {
	t.Helper()
	db, _ := newSQLMockDB(t)
	s := newMemStore()
	s.addUser("u-a", "a@example.com")
	s.addUser("u-b", "b@example.com")
	s.addObject(&models.Object{ID: "o-1", OwnerID: "u-a", CreatorID: "u-a", Name: "docs", State: models.Active})
	return NewAccessService(db, &fakeRepoManager{s: s}, nop), s
}

func TestAccessService_Grant(t *testing.T) {
	svc, s := newAccessFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "u-a", Kind: models.ActorUser}

	g, err := svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true})
	require.NoError(t, err)
	assert.Equal(t, "u-b", g.UserID)
	assert.Equal(t, "b@example.com", g.Email)
	assert.True(t, g.Capabilities.Read)
	assert.False(t, g.Capabilities.Delete)

	p, ok := s.perms[[2]string{"u-b", "o-1"}]
	require.True(t, ok)
	assert.Equal(t, models.Capabilities{Read: true}, p.Capabilities)

	_, err = svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestAccessService_Grant_Errors(t *testing.T) {
	svc, s := newAccessFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "u-a", Kind: models.ActorUser}

	_, err := svc.Grant(ctx, owner, "o-1", "nobody@example.com", models.Capabilities{Read: true})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.Grant(ctx, owner, "missing", "b@example.com", models.Capabilities{Read: true})
	assert.ErrorIs(t, err, common.ErrNotFound)

	s.objects["o-1"].State = models.Eliminated
	_, err = svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAccessService_Revoke(t *testing.T) {
	svc, s := newAccessFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "u-a", Kind: models.ActorUser}

	_, err := svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true, Edit: true})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, owner, "o-1", "u-b"))
	_, ok := s.perms[[2]string{"u-b", "o-1"}]
	assert.False(t, ok)

	err = svc.Revoke(ctx, owner, "o-1", "u-b")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAccessService_Revoke_Forbidden(t *testing.T) {
	svc, _ := newAccessFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "u-a", Kind: models.ActorUser}
	other := models.Actor{ID: "u-b", Kind: models.ActorUser}

	_, err := svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true, Edit: true})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Revoke(ctx, owner, "o-1", "u-a"), common.ErrInvalidOperation)
	assert.ErrorIs(t, svc.Revoke(ctx, other, "o-1", "u-b"), common.ErrInvalidOperation)
	assert.ErrorIs(t, svc.Revoke(ctx, other, "o-1", "u-a"), common.ErrInvalidOperation)
}

func TestAccessService_Require(t *testing.T) {
	svc, _ := newAccessFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "u-a", Kind: models.ActorUser}

	_, err := svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true})
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		cap     models.Capability
		wantErr error
	}{
		{"owner delete", "u-a", models.CapDelete, nil},
		{"reader read", "u-b", models.CapRead, nil},
		{"reader edit", "u-b", models.CapEdit, common.ErrPermissionDenied},
		{"reader delete", "u-b", models.CapDelete, common.ErrPermissionDenied},
		{"stranger read", "u-c", models.CapRead, common.ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Require(ctx, tt.userID, "o-1", tt.cap)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAccessService_ListGrants(t *testing.T) {
	svc, _ := newAccessFixture(t)
	ctx := context.Background()
	owner := models.Actor{ID: "u-a", Kind: models.ActorUser}

	_, err := svc.Grant(ctx, owner, "o-1", "b@example.com", models.Capabilities{Read: true})
	require.NoError(t, err)

	grants, err := svc.ListGrants(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "u-a", grants[0].UserID)
	assert.Equal(t, models.OwnerCapabilities(), grants[0].Capabilities)
	assert.Equal(t, "u-b", grants[1].UserID)
}
