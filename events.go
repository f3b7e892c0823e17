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

package kaleido

import "github.com/sirupsen/logrus"

// An EventKind classifies a progress event.
type EventKind int

// The progress event kinds.
const (
	EventVariableStarted EventKind = iota
	EventVariableFinished
	EventWarning
	EventRunFailed
)

func (k EventKind) String() string {
	switch k {
	case EventVariableStarted:
		return "variable started"
	case EventVariableFinished:
		return "variable finished"
	case EventWarning:
		return "warning"
	case EventRunFailed:
		return "run failed"
	}
	return "unknown"
}

// An Event describes the progress of an engine run.
type Event struct {
	Engine   string // "scatter" or "collect"
	Kind     EventKind
	Variable string // variable concerned, if any
	Message  string
}

// An EventSink receives structured progress events from the engines.
// Implementations must be safe for concurrent use.
type EventSink interface {
	Event(e Event)
}

// sendEvent delivers an event to a possibly-nil sink. The engines never
// depend on a sink being present.
func sendEvent(s EventSink, e Event) {
	if s != nil {
		s.Event(e)
	}
}

// logSink logs events through a logrus logger.
type logSink struct {
	log *logrus.Logger
}

// NewLogSink returns an event sink that logs events through log.
func NewLogSink(log *logrus.Logger) EventSink {
	return &logSink{log: log}
}

func (s *logSink) Event(e Event) {
	entry := s.log.WithFields(logrus.Fields{
		"engine":   e.Engine,
		"variable": e.Variable,
	})
	switch e.Kind {
	case EventWarning:
		entry.Warn(e.Message)
	case EventRunFailed:
		entry.Error(e.Message)
	default:
		if e.Message != "" {
			entry.Infof("%s: %s", e.Kind, e.Message)
		} else {
			entry.Info(e.Kind.String())
		}
	}
}
