package main

import (
	"log"
	"os"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
	emailsvc "github.com/Mavuisra/naklass-sub005/services/email"
	logsvc "github.com/Mavuisra/naklass-sub005/services/logger"
	"github.com/Mavuisra/naklass-sub005/storage/database"
	sqlxrepos "github.com/Mavuisra/naklass-sub005/storage/database/sqlx"
	"github.com/Mavuisra/naklass-sub005/storage/files"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	database.SetMigrationLogger(logsvc.NewRollbarLogger(logger, conf))

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	fileStore, err := files.NewLocalStore(conf.Uploads.Dir, conf.Uploads.MaxSize)
	errAndDie(err)

	validator := core.NewValidator()
	user.InitValidators(validator.Validate, validator.Translator)
	academicyear.InitValidators(validator.Validate, validator.Translator)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validator)
	schoolSvc := school.NewService(
		db, sqlxrepos.NewSchoolRepository(db), usrSvc, fileStore,
		emailsvc.NewConsoleService(conf, logsvc.NewRollbarLogger(logger, conf)), validator,
	)

	// start CLI
	cli := commandLine{
		db:        db,
		engine:    conf.Database.Engine,
		usrSvc:    usrSvc,
		schoolSvc: schoolSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
