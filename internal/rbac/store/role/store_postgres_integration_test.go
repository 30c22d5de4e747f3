//go:build integration

package role_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bankguard/internal/rbac/models"
	"bankguard/internal/rbac/store/role"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/testutil/containers"
)

type PostgresRoleStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *role.PostgresStore
	ctx   context.Context
}

func TestPostgresRoleStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRoleStoreSuite))
}

func (s *PostgresRoleStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = role.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresRoleStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "roles"))
}

func (s *PostgresRoleStoreSuite) newRole(name string, perms ...string) *models.Role {
	r, err := models.NewRole(uuid.New(), name, "", perms, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return r
}

func (s *PostgresRoleStoreSuite) TestLifecycle() {
	teller := s.newRole("teller", "VIEW_BALANCE")
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, teller))

	s.Run("name lookup ignores case", func() {
		found, err := s.store.FindByName(s.ctx, "TELLER")
		s.Require().NoError(err)
		s.Equal(teller.ID, found.ID)
		s.Equal([]string{"VIEW_BALANCE"}, found.Permissions)
	})

	s.Run("duplicate name is rejected", func() {
		s.ErrorIs(s.store.CreateIfNameAvailable(s.ctx, s.newRole("Teller")), sentinel.ErrDuplicate)
	})

	s.Run("update replaces permissions", func() {
		teller.Permissions = []string{"AI_QUERY", "VIEW_BALANCE"}
		s.Require().NoError(s.store.Update(s.ctx, teller))
		found, err := s.store.FindByID(s.ctx, teller.ID)
		s.Require().NoError(err)
		s.Equal([]string{"AI_QUERY", "VIEW_BALANCE"}, found.Permissions)
	})

	s.Run("delete removes the role", func() {
		s.Require().NoError(s.store.Delete(s.ctx, teller.ID))
		_, err := s.store.FindByID(s.ctx, teller.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.ErrorIs(s.store.Delete(s.ctx, teller.ID), sentinel.ErrNotFound)
	})
}
