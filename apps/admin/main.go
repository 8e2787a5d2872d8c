package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

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

	logger := logsvc.NewRollbarLogger("admin", conf)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// sessions opened here must reach the API processes: share their bus when configured
	var bus auth.EventBus = auth.NewHub()
	if conf.Redis.Address != "" {
		redisBus, err := pubsub.NewRedisBus(conf, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis event bus: %v", err), err)
		}
		defer func() { _ = redisBus.Close() }()
		bus = redisBus
	}
	var publisher portal.CreditPublisher
	if conf.AMQP.URL != "" {
		creditPublisher := queue.NewCreditPublisher(conf, logger)
		defer func() { _ = creditPublisher.Close() }()
		publisher = creditPublisher
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)

	identityRepo := sqlxrepos.NewIdentityRepository(db, conf.Database.QueryTimeout)
	profileRepo := sqlxrepos.NewProfileRepository(db, conf.Database.QueryTimeout)
	portalRepo := sqlxrepos.NewPortalRepository(db, conf.Database.QueryTimeout)

	mailSvc := emailsvc.NewConsoleService(conf, logger)
	if !conf.Debug {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	authSvc := auth.NewService(identityRepo, profileRepo, bus, mailSvc, validate, logger, conf)

	// start CLI
	cli := commandLine{
		db:        db,
		authSvc:   authSvc,
		portalSvc: portal.NewService(portalRepo, profileRepo, authSvc, publisher, mailSvc, validate, logger),
		profiles:  profileRepo,
		logger:    logger,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		}
		os.Exit(1)
	}
}
