package service

import (
	"Aorko/internal/model"
	"Aorko/internal/pkg/consts"
	"Aorko/internal/pkg/redis"
	"Aorko/internal/pkg/security"
	"Aorko/internal/repository"
	"context"
	"errors"
	log "log/slog"
)

// AuthService 连接与请求鉴权
type AuthService interface {
	// VerifyCredential 校验凭据并返回用户。缺失、过期、无效分别返回不同哨兵错误
	VerifyCredential(ctx context.Context, token string) (*model.User, error)
}

type authServiceImpl struct {
	userRepo repository.UserRepo
	// isRevoked 查询吊销名单，按 token 签名比对
	isRevoked func(ctx context.Context, signature string) (bool, error)
}

func NewAuthService(userRepo repository.UserRepo) AuthService {
	return &authServiceImpl{
		userRepo: userRepo,
		isRevoked: func(ctx context.Context, signature string) (bool, error) {
			value, err := redis.GetValue(ctx, consts.TokenRevokedKey+signature)
			if err != nil {
				return false, err
			}
			return value != "", nil
		},
	}
}

func (s *authServiceImpl) VerifyCredential(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	claims, err := security.ValidateToken(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	signature, err := security.ExtractSignature(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	revoked, err := s.isRevoked(ctx, signature)
	if err != nil {
		log.Error("查询吊销名单失败", "err", err)
		return nil, ErrStoreUnavailable
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	user, err := s.userRepo.GetUserById(ctx, claims.UserID)
	if err != nil {
		log.Error("查询用户失败", "userID", claims.UserID, "err", err)
		return nil, ErrStoreUnavailable
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}
