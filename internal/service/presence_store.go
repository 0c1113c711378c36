package service

import (
	"Aorko/internal/pkg/consts"
	"Aorko/internal/repository"
	"context"
	"time"
)

// presenceStore 把连接注册表的在线状态写到用户身份表
type presenceStore struct {
	userRepo repository.UserRepo
}

func NewPresenceStore(userRepo repository.UserRepo) *presenceStore {
	return &presenceStore{userRepo: userRepo}
}

func (s *presenceStore) SetOnline(ctx context.Context, userID uint64) error {
	return s.userRepo.UpdateStatus(ctx, userID, consts.UserStatusOnline, nil)
}

func (s *presenceStore) SetOffline(ctx context.Context, userID uint64, lastSeen time.Time) error {
	return s.userRepo.UpdateStatus(ctx, userID, consts.UserStatusOffline, &lastSeen)
}
