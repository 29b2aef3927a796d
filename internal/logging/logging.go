// Package logging centralizes the logrus setup so every component receives
// an explicit *logrus.Entry instead of reaching for a package-level logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger for the station process, tagged with the
// charge point id so every downstream WithField call carries it.
func New(chargePointID string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log.WithField("cp", chargePointID)
}
