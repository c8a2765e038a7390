// Package audit relays credential-flow events to pluggable sinks without
// blocking the flow that produced them.
//
// # Components
//
//   - [Event]: one flow outcome (type, user, client IP, success, error code).
//   - [Sink]: consumer interface. [ChannelSink], [JSONWriterSink] and
//     [LogSink] (logrus) are provided, plus [NoOpSink].
//   - [Dispatcher]: buffered single-goroutine relay with drop-if-full or
//     block-if-full delivery.
//
// The engine decides which events exist; this package only buffers and
// delivers them.
package audit
