package kafka

import (
	"Aorko/internal/model"
	"Aorko/internal/repository"
	"context"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
)

// UserSyncHandler 消费身份服务 users 表的 canal 变更，维护本地用户镜像
type UserSyncHandler struct {
	userRepo repository.UserRepo
}

func NewUserSyncHandler(userRepo repository.UserRepo) *UserSyncHandler {
	return &UserSyncHandler{userRepo: userRepo}
}

func (s *UserSyncHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("user sync consumer setup")
	return nil
}

func (s *UserSyncHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("user sync consumer cleanup")
	return nil
}

func (s *UserSyncHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-user-sync consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("process batch error", "err", err)
		return err
	}
	log.Info("topic-user-sync consume claim end")
	return nil
}

func (s *UserSyncHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, "users")
	if err != nil {
		return err
	}

	for _, row := range canalMsg.Data {
		userID := StrToUint64(row["id"])
		if userID == 0 {
			continue
		}

		if canalMsg.Type == "DELETE" || StrField(row, "is_delete") == "1" {
			if err = s.userRepo.DeleteUser(ctx, userID); err != nil {
				return err
			}
			continue
		}

		user := &model.User{
			ID:        userID,
			Username:  StrField(row, "username"),
			Nickname:  StrField(row, "nickname"),
			AvatarURL: StrField(row, "avatar_url"),
			UpdatedAt: time.Now(),
		}
		if err = s.userRepo.UpsertUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}
