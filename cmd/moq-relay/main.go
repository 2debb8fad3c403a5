package main

import (
	"time"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/buffer"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/cache"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/config"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/event"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relation"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relay"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/server"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/utils"
)

const defaultCacheCapacity = 1024

func main() {
	conf, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	var registry database.TrackRegistry
	if err := database.ConnectDatabase(); err != nil {
		logger.WarnF("Error occured while initializing database, falling back to in-memory registry, details: %v", err)
		registry = database.NewMemoryStore()
	} else {
		registry = database.NewDatabaseStore()
	}

	capacity := conf.Cache.Capacity
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	objectTTL := utils.ParseStringTime(conf.Cache.ObjectTTL)
	if objectTTL <= 0 {
		objectTTL = time.Minute
	}

	relations := relation.NewManager()
	storage := cache.NewStorage(capacity)
	buffers := buffer.NewManager()
	control := dispatch.NewControlDispatcher()
	signals := dispatch.NewSignalDispatcher()
	sender := connection.NewMessageSender(control)

	r := relay.NewRelay(relations, storage, buffers, control, signals, sender, registry, objectTTL)
	srv := server.NewServer(r, control, signals, buffers, utils.ParseStringTime(conf.Server.HandshakeTimeout))
	srv.StartServer(conf)
}
