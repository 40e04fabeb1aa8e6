package logger

import (
	"github.com/gruntwork-io/go-commons/logging"
	"github.com/sirupsen/logrus"
)

// GetProjectLogger returns the shared logger for the project.
func GetProjectLogger() *logrus.Logger {
	return logging.GetLogger("groove")
}
