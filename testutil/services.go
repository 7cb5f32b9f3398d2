package testutil

import (
	"io"
	"log"
	"sync"

	"github.com/Mavuisra/naklass-sub005/core"
	appfs "github.com/Mavuisra/naklass-sub005/fs"
	emailsvc "github.com/Mavuisra/naklass-sub005/services/email"
	logsvc "github.com/Mavuisra/naklass-sub005/services/logger"
)

var parseTemplatesOnce sync.Once

// NewLogger returns a logger writing nowhere. Rollbar stays disabled in test mode.
func NewLogger(conf *core.Config) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewMailer returns an email service recording the messages it renders.
func NewMailer(conf *core.Config) *emailsvc.ConsoleServiceMock {
	logger := NewLogger(conf)
	parseTemplatesOnce.Do(func() {
		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger, true)
	})
	return emailsvc.NewConsoleServiceMock(conf, logger)
}
