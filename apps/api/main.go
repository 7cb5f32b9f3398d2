package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/Mavuisra/naklass-sub005/apps/api/echo"
	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/teacher"
	"github.com/Mavuisra/naklass-sub005/core/user"
	appfs "github.com/Mavuisra/naklass-sub005/fs"
	emailsvc "github.com/Mavuisra/naklass-sub005/services/email"
	logsvc "github.com/Mavuisra/naklass-sub005/services/logger"
	"github.com/Mavuisra/naklass-sub005/storage/database"
	sqlxrepos "github.com/Mavuisra/naklass-sub005/storage/database/sqlx"
	"github.com/Mavuisra/naklass-sub005/storage/files"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	database.SetMigrationLogger(dbLogger)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	fileStore, err := files.NewLocalStore(conf.Uploads.Dir, conf.Uploads.MaxSize)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up uploads: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validator := core.NewValidator()
	user.InitValidators(validator.Validate, validator.Translator)
	academicyear.InitValidators(validator.Validate, validator.Translator)

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger, conf.Debug)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validator)
	resetSvc := user.NewPasswordResetService(usrSvc, user.NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta), mailSvc)
	schoolSvc := school.NewService(db, sqlxrepos.NewSchoolRepository(db), usrSvc, fileStore, mailSvc, validator)
	yearSvc := academicyear.NewService(db, sqlxrepos.NewAcademicYearRepository(db), validator)
	teacherSvc := teacher.NewService(db, sqlxrepos.NewTeacherRepository(db), usrSvc, fileStore, validator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validator:  validator,
			UserSvc:    usrSvc,
			ResetSvc:   resetSvc,
			SchoolSvc:  schoolSvc,
			YearSvc:    yearSvc,
			TeacherSvc: teacherSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db.DB, conf.Database.Engine, "up"); err != nil {
		return nil, err
	}
	return db, nil
}
