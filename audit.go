package mpauth

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/mpauth/internal/audit"
)

// AuditEvent is one security-relevant outcome delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel for the caller to drain.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON document per event.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs audit events through a slog.Logger.
type SlogSink = audit.SlogSink

// NewChannelSink returns a sink backed by a channel of the given capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes newline-delimited JSON to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink that logs through l.
func NewSlogSink(l *slog.Logger) *SlogSink {
	return audit.NewSlogSink(l)
}
