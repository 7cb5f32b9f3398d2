package main

import (
	"context"

	"github.com/Mavuisra/naklass-sub005/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(context.Background(), cli.db.DB, cli.engine, args[0], args[1:]...)
}
