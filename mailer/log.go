package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogTransport writes messages to a logger instead of delivering them.
// Intended for local development. Bodies carry codes and reset links, so
// only the recipient and subject are logged at info; the body goes out at
// debug level.
type LogTransport struct {
	log logrus.FieldLogger
}

// NewLogTransport returns a LogTransport writing to log, or to the logrus
// standard logger when log is nil.
func NewLogTransport(log logrus.FieldLogger) *LogTransport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogTransport{log: log}
}

// Send logs msg and never fails.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	entry := t.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	})
	entry.Info("mail not delivered, log transport active")
	entry.Debug(msg.HTML)
	return nil
}
