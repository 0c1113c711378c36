package kafka

import (
	"Aorko/internal/api/config"
	"Aorko/internal/repository"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	userSyncConsumer sarama.ConsumerGroup
	userSyncHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, userRepo repository.UserRepo) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	userSyncConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaUserSyncConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		userSyncConsumer: userSyncConsumer,
		userSyncHandler:  NewUserSyncHandler(userRepo),
	}, nil
}

// Start 启动所有消费者，阻塞直到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	go func() {
		topic := cfg.KafkaUserSyncConsumer.Topic
		log.Info("User sync consumer started", "topic", topic)
		for {
			if err := m.userSyncConsumer.Consume(ctx, []string{topic}, m.userSyncHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.userSyncConsumer.Close(); err != nil {
		log.Error("Failed to close user sync consumer", "err", err)
	}

	return nil
}
