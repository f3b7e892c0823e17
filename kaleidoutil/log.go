/*
Copyright © 2026 the Kaleido authors.
This file is part of Kaleido.

Kaleido is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Kaleido is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Kaleido.  If not, see <http://www.gnu.org/licenses/>.
*/

package kaleidoutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// newLogger creates the logger used by the command-line interface. All
// diagnostic output goes to the standard error stream so that standard
// output stays clean for machine consumption.
func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	switch level {
	case "off":
		log.Out = io.Discard
	case "":
		log.SetLevel(logrus.InfoLevel)
	default:
		l, err := logrus.ParseLevel(level)
		if err != nil {
			log.SetLevel(logrus.InfoLevel)
			log.WithField("log-level", level).Warn("unknown log level, using info")
			break
		}
		log.SetLevel(l)
	}
	return log
}

// logConfig records the effective configuration at debug level.
func logConfig(log *logrus.Logger) {
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	fields := logrus.Fields{}
	for _, option := range options {
		fields[option.name] = Cfg.Get(option.name)
	}
	log.WithFields(fields).Debug("configuration")
}
