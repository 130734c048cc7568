package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupBranchService(t *testing.T) branchdomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&branchdomain.Branch{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node})
}

func TestCreateAndGetBranch(t *testing.T) {
	service := setupBranchService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, branchdomain.CreateRequest{Name: "  Main  "})
	require.NoError(t, err)
	assert.Equal(t, "Main", created.Name)

	got, err := service.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateBranchValidation(t *testing.T) {
	service := setupBranchService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, branchdomain.CreateRequest{Name: "   "})
	assert.ErrorIs(t, err, branchdomain.ErrInvalidName)

	_, err = service.Create(ctx, branchdomain.CreateRequest{Name: "Main"})
	require.NoError(t, err)
	_, err = service.Create(ctx, branchdomain.CreateRequest{Name: "Main"})
	assert.ErrorIs(t, err, branchdomain.ErrDuplicateName)
}

func TestListBranchesSortedByName(t *testing.T) {
	service := setupBranchService(t)
	ctx := context.Background()

	for _, name := range []string{"Riverside", "Airport", "Midtown"} {
		_, err := service.Create(ctx, branchdomain.CreateRequest{Name: name})
		require.NoError(t, err)
	}

	resp, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Branches, 3)
	assert.Equal(t, "Airport", resp.Branches[0].Name)
	assert.Equal(t, "Midtown", resp.Branches[1].Name)
	assert.Equal(t, "Riverside", resp.Branches[2].Name)
}

func TestGetBranchErrors(t *testing.T) {
	service := setupBranchService(t)
	ctx := context.Background()

	_, err := service.GetByID(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, branchdomain.ErrInvalidID)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	_, err = service.GetByID(ctx, node.Generate().String())
	assert.ErrorIs(t, err, branchdomain.ErrNotFound)
}
