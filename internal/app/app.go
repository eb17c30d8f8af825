package app

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/intentbase-backend/internal/data/db"
	"github.com/yungbote/intentbase-backend/internal/data/repos"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, clientset)
	handlerset := wireHandlers(log, serviceset)
	middlewareset := wireMiddleware(log)
	router := wireRouter(handlerset, middlewareset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Clients:  clientset,
		Services: serviceset,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Clients.Leases != nil {
		_ = a.Clients.Leases.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
