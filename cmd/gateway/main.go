package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liveclass/liveclass/pkg/auth"
	"github.com/liveclass/liveclass/pkg/chat"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/gateway"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/media"
	"github.com/liveclass/liveclass/pkg/monitoring"
	"github.com/liveclass/liveclass/pkg/os"
	"github.com/liveclass/liveclass/pkg/service"
	"github.com/liveclass/liveclass/pkg/session"
)

var Version = "?"

func main() {
	var conf config.Config
	if err := conf.ParseFlags(); err != nil {
		panic(err)
	}
	log := logger.New(conf.Debug, "gw")
	log.Info().Msgf("version %s", Version)
	if conf.Debug {
		log.Debug().Msgf("config: %+v", conf)
	}
	if err := conf.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad config")
	}

	var directory session.Directory
	var store chat.Store
	if dsn := conf.Postgres.DSN; dsn != "" {
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		directory = session.NewPgDirectory(pool)
		store = chat.NewPgStore(pool)
	} else {
		log.Warn().Msg("no postgres dsn configured, sessions and chat are in-memory")
		directory = session.NewMemDirectory()
		store = chat.NewMemStore()
	}

	gw, err := gateway.New(conf, gateway.Deps{
		Directory: directory,
		Store:     store,
		Media:     media.NewLiveKit(conf.LiveKit, log),
		Verifier:  auth.NewVerifier(conf.Auth),
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway init")
	}

	services := service.NewGroup(log, gw)
	services.AddIf(monitoring.IsEnabled(conf.Monitoring), monitoring.New(conf.Monitoring, log))
	services.Start()

	<-os.ExpectTermination()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	services.Stop(ctx)
}
