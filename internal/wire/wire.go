package wire

import (
	"Aorko/internal/api"
	"Aorko/internal/api/config"
	"Aorko/internal/api/handler"
	"Aorko/internal/im"
	"Aorko/internal/job"
	"Aorko/internal/pkg/cron"
	"Aorko/internal/pkg/es"
	"Aorko/internal/pkg/kafka"
	appmongo "Aorko/internal/pkg/mongo"
	"Aorko/internal/repository"
	"Aorko/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	Hub          *im.Hub
	CronMgr      *cron.Manager
	KafkaManager *kafka.ConsumerManager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	userRepo := repository.NewUserRepo(db)

	convRepo := appmongo.NewConversationRepo(mongoDB)
	messageRepo := appmongo.NewMessageRepo(mongoDB)
	archiveRepo := appmongo.NewArchiveRepo(mongoDB)
	searchRepo := es.NewArchiveSearchRepo(es.Client)

	hub := im.NewHub(service.NewPresenceStore(userRepo))

	authService := service.NewAuthService(userRepo)
	imService := service.NewIMService(convRepo, messageRepo, userRepo, hub,
		service.NewMinioStorage(), cfg.IM.MaxFileBytes)
	historyService := service.NewHistoryService(convRepo, messageRepo, archiveRepo, searchRepo, userRepo)

	// 上行事件全部进 IMService
	hub.SetHandler(imService)

	handlers := &api.HandlersGroup{
		WSHandler:      handler.NewWsHandler(authService, hub, cfg.IM),
		MessageHandler: handler.NewMessageHandler(imService, historyService),
	}

	router := api.SetupRouter(handlers, authService)

	archiveJob := job.NewMessageArchiveJob(messageRepo, archiveRepo, searchRepo, cfg)
	cronMgr := cron.NewCronManager(archiveJob, cfg.Archive.Spec)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, userRepo)
	if err != nil {
		return nil, err
	}

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		Hub:          hub,
		CronMgr:      cronMgr,
		KafkaManager: kafkaMgr,
	}, nil
}
