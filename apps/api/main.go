package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/clubhub/apps/api/echo"
	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
	"github.com/trezcool/clubhub/core/member"
	"github.com/trezcool/clubhub/core/portal"
	emailsvc "github.com/trezcool/clubhub/services/email"
	logsvc "github.com/trezcool/clubhub/services/logger"
	"github.com/trezcool/clubhub/services/pubsub"
	"github.com/trezcool/clubhub/services/queue"
	"github.com/trezcool/clubhub/storage/database"
	sqlxrepos "github.com/trezcool/clubhub/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger("api", conf)
	defer logger.Close()

	if err := run(conf, logger); err != nil {
		logger.Fatal(err.Error(), err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	dbLogger := logsvc.NewRollbarLogger("db", conf)
	defer dbLogger.Close()

	db, err := setUpDB(conf)
	if err != nil {
		return errors.Wrap(err, "setting up database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			dbLogger.Error("closing database", err)
		}
	}()

	bus, closeBus, err := eventBus(conf, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	var publisher portal.CreditPublisher
	if conf.AMQP.URL != "" {
		creditPublisher := queue.NewCreditPublisher(conf, logger)
		defer func() { _ = creditPublisher.Close() }()
		publisher = creditPublisher
	}

	var mailSvc core.EmailService = emailsvc.NewConsoleService(conf, logger)
	if !conf.Debug {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	logger.Info(fmt.Sprintf("%s api starting : build %q, env %s", conf.AppName, conf.Build, conf.Env))
	defer logger.Info("api stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)

	identityRepo := sqlxrepos.NewIdentityRepository(db, conf.Database.QueryTimeout)
	profileRepo := sqlxrepos.NewProfileRepository(db, conf.Database.QueryTimeout)
	portalRepo := sqlxrepos.NewPortalRepository(db, conf.Database.QueryTimeout)

	authSvc := auth.NewService(identityRepo, profileRepo, bus, mailSvc, validate, logger, conf)
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		AuthSvc:    authSvc,
		MemberSvc:  member.NewService(profileRepo, validate),
		PortalSvc:  portal.NewService(portalRepo, profileRepo, authSvc, publisher, mailSvc, validate, logger),
		Resolver:   member.NewResolver(profileRepo, logger),
		Profiles:   profileRepo,
		Validate:   validate,
		Translator: translator,
	})

	// /debug/pprof and /debug/vars are registered on the default mux by their imports
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error("debug server closed", err)
		}
	}()

	go server.Start()

	select {
	case err := <-server.Errors():
		return errors.Wrap(err, "server error")

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: shutting down", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", err)
			if err := server.Close(); err != nil {
				return errors.Wrap(err, "could not force stop server")
			}
		}
	}
	return nil
}

// eventBus shares auth events through redis when configured, in-process otherwise.
func eventBus(conf *core.Config, logger core.Logger) (auth.EventBus, func(), error) {
	if conf.Redis.Address == "" {
		return auth.NewHub(), func() {}, nil
	}
	bus, err := pubsub.NewRedisBus(conf, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "setting up redis event bus")
	}
	return bus, func() { _ = bus.Close() }, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
