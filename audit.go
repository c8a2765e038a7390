package credflow

import (
	"io"

	internalaudit "github.com/MrEthical07/credflow/internal/audit"
	"github.com/sirupsen/logrus"
)

// AuditEvent is one flow outcome delivered to the configured AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink consumes audit events off the request path.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type LogSink = internalaudit.LogSink

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink writes audit events through log.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return internalaudit.NewLogSink(log)
}
