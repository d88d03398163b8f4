package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dealer-support-server/internal/model"
	"dealer-support-server/internal/repository"
	"dealer-support-server/pkg/jwt"
)

type memBlacklist map[string]time.Time

func (m memBlacklist) BlacklistToken(_ context.Context, hash string, expireAt time.Time) error {
	m[hash] = expireAt
	return nil
}

func newAuthService(t *testing.T) (*AuthService, *repository.OperatorRepository, memBlacklist) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Operator{}))

	repo := repository.NewOperatorRepository(db)
	bl := memBlacklist{}
	svc := NewAuthService(repo, bl, jwt.NewJWTService("0123456789abcdef0123456789abcdef", time.Hour, 24*time.Hour))
	return svc, repo, bl
}

func TestAuthService_LoginAndRefresh(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthService(t)

	require.NoError(t, svc.EnsureOperator(ctx, "maria", "s3cret!", "Maria", model.OperatorRoleSupervisor))
	// 再次调用不会重复创建
	require.NoError(t, svc.EnsureOperator(ctx, "maria", "other", "Maria", model.OperatorRoleSupervisor))

	_, err := svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "x"})
	assert.ErrorIs(t, err, ErrOperatorNotFound)

	_, err = svc.Login(ctx, &LoginRequest{Username: "maria", Password: "other"})
	assert.ErrorIs(t, err, ErrPasswordWrong)

	resp, err := svc.Login(ctx, &LoginRequest{Username: "maria", Password: "s3cret!"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "Maria", resp.Operator.DisplayName)

	refreshed, err := svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.RefreshToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)

	op, err := svc.GetOperator(ctx, resp.Operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria", op.Username)
}

func TestAuthService_DisabledOperator(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newAuthService(t)

	require.NoError(t, svc.EnsureOperator(ctx, "john", "pw", "John", model.OperatorRoleAgent))
	op, err := repo.GetByUsername(ctx, "john")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, 0))

	_, err = svc.Login(ctx, &LoginRequest{Username: "john", Password: "pw"})
	assert.ErrorIs(t, err, ErrOperatorDisabled)
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newAuthService(t)

	require.NoError(t, svc.EnsureOperator(ctx, "maria", "old-pass", "Maria", model.OperatorRoleAgent))
	op, err := repo.GetByUsername(ctx, "maria")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, op.ID, &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "new-pass"})
	assert.ErrorIs(t, err, ErrPasswordWrong)

	require.NoError(t, svc.ChangePassword(ctx, op.ID, &ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-pass"}))

	_, err = svc.Login(ctx, &LoginRequest{Username: "maria", Password: "old-pass"})
	assert.ErrorIs(t, err, ErrPasswordWrong)
	_, err = svc.Login(ctx, &LoginRequest{Username: "maria", Password: "new-pass"})
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, 999, &ChangePasswordRequest{OldPassword: "x", NewPassword: "yyyyyy"}), ErrOperatorNotFound)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, bl := newAuthService(t)
	expire := time.Now().Add(time.Hour)

	require.NoError(t, svc.Logout(context.Background(), "hash", expire))
	assert.Equal(t, expire, bl["hash"])
}
