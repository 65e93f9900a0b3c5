package log

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"
)

// WatermillAdapter routes watermill router and pub/sub logs through a logr.Logger.
type WatermillAdapter struct {
	l logr.Logger
}

var _ watermill.LoggerAdapter = WatermillAdapter{}

// NewWatermillAdapter wraps l. Debug maps to V(1) and Trace to V(2).
func NewWatermillAdapter(l logr.Logger) WatermillAdapter {
	return WatermillAdapter{l: l}
}

func (a WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(err, msg, flatten(fields)...)
}

func (a WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(msg, flatten(fields)...)
}

func (a WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.V(1).Info(msg, flatten(fields)...)
}

func (a WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.V(2).Info(msg, flatten(fields)...)
}

func (a WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillAdapter{l: a.l.WithValues(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
