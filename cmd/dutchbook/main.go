package main

import (
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dutchbook/dutchbook/internal/config"
	"github.com/dutchbook/dutchbook/internal/events"
	"github.com/dutchbook/dutchbook/internal/index"
	"github.com/dutchbook/dutchbook/internal/lifecycle"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
	"github.com/dutchbook/dutchbook/internal/server"
	"github.com/dutchbook/dutchbook/internal/store"
	"github.com/dutchbook/dutchbook/internal/unimind"
	"github.com/dutchbook/dutchbook/pkg/logger"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	st, err := store.Open(cfg.StorePath, zlog)
	if err != nil {
		zlog.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, zlog)
		defer kp.Close()
		publisher = kp
	}

	repos := map[model.OrderType]*repository.OrderRepository{
		model.TypeDutch: repository.NewOrderRepository(st,
			index.NewRouter("dutch", index.DutchTable), publisher, zlog),
		model.TypeDutchV2: repository.NewOrderRepository(st,
			index.NewRouter("dutch_v2", index.DutchTable), publisher, zlog),
		model.TypeLimit: repository.NewOrderRepository(st,
			index.NewRouter("limit", index.LimitTable), publisher, zlog),
		model.TypeRelay: repository.NewOrderRepository(st,
			index.NewRouter("relay", index.RelayTable), publisher, zlog),
	}
	orders := repos[model.TypeDutch]

	paramsRepo := repository.NewUnimindParamsRepo(st, zlog)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	quotes := repository.NewRedisQuoteRepo(rdb, cfg.QuoteTTL, zlog)

	strategy, err := unimind.NewStrategy(unimind.TagPriceImpact)
	if err != nil {
		zlog.Fatal("selecting unimind strategy", zap.Error(err))
	}

	ctrlCfg := unimind.DefaultControllerConfig()
	if cfg.UnimindLookback > 0 {
		ctrlCfg.Lookback = cfg.UnimindLookback
	}
	if cfg.UnimindThreshold > 0 {
		ctrlCfg.UpdateThreshold = cfg.UnimindThreshold
	}
	controller := unimind.NewController(orders, paramsRepo, quotes, strategy, ctrlCfg, zlog)
	quoting := unimind.NewService(strategy, paramsRepo, quotes,
		unimind.NewSupportedTokens(cfg.SupportedTokens), zlog)

	tracker := lifecycle.NewTracker(orders, lifecycle.DeadlineValidator{}, zlog)

	srv := server.New(repos, tracker, controller, quoting, zlog)
	zlog.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.Run(cfg.ListenAddr); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}
