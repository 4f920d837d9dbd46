// Package emberlog wires every other package to a single injected
// *zap.Logger. Embedders who don't care about logging get zap.NewNop();
// there is no forced stderr output.
package emberlog

import "go.uber.org/zap"

// Nop is the default logger used whenever a component is constructed
// without one.
var Nop = zap.NewNop()

// Or returns logger if it is non-nil, otherwise Nop. Every constructor in
// this module that accepts a *zap.Logger should route it through Or so
// nil is always a safe value to pass.
func Or(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return Nop
	}
	return logger
}

// ConnFields builds the standard field set attached to connection-handler
// log lines.
func ConnFields(connID int64, remoteAddr string) []zap.Field {
	return []zap.Field{
		zap.Int64("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
	}
}

// RequestFields extends a connection's fields with the request ID, used
// once a request has been parsed off that connection.
func RequestFields(connID, requestID int64, remoteAddr string) []zap.Field {
	return append(ConnFields(connID, remoteAddr), zap.Int64("request_id", requestID))
}
