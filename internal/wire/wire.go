package wire

import (
	"Mosaic/internal/api"
	"Mosaic/internal/api/config"
	"Mosaic/internal/api/handler"
	"Mosaic/internal/job"
	"Mosaic/internal/pkg/cron"
	"Mosaic/internal/pkg/hub"
	"Mosaic/internal/pkg/kafka"
	"Mosaic/internal/pkg/linkpreview"
	mongopkg "Mosaic/internal/pkg/mongo"
	"Mosaic/internal/repository"
	"Mosaic/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router   *gin.Engine
	DB       *gorm.DB
	Registry *hub.Registry
	Bus      *hub.Bus
	Producer *kafka.ActivityProducer
	CronMgr  *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	userRepo := repository.NewUserRepo(db)
	convRepo := mongopkg.NewConversationRepo(mongoDB)
	msgRepo := mongopkg.NewMessageRepo(mongoDB)

	registry := hub.NewRegistry(userRepo)
	bus := hub.NewBus(registry, cfg.IM.TypingTimeoutMs)

	producer, err := kafka.NewActivityProducer(cfg)
	if err != nil {
		return nil, err
	}

	userService := service.NewUserService(userRepo)
	imService := service.NewIMService(convRepo, msgRepo, userRepo, bus, linkpreview.NewFetcher(), producer)

	handlers := &api.HandlersGroup{
		UserHandler: handler.NewUserHandler(userService),
		IMHandler:   handler.NewIMHandler(imService),
		WsHandler:   handler.NewWsHandler(imService, bus),
	}

	router := api.SetupRouter(handlers)

	repairJob := job.NewConversationRepairJob(convRepo, msgRepo, userRepo)
	cronMgr := cron.NewCronManager(repairJob)

	return &ApplicationContainer{
		Router:   router,
		DB:       db,
		Registry: registry,
		Bus:      bus,
		Producer: producer,
		CronMgr:  cronMgr,
	}, nil
}
