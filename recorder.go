package main

import (
	"context"

	"WhatsFlow/entity"
)

type messageSink interface {
	Record(ctx context.Context, msg *entity.Message) error
}

// teeRecorder writes each logged message to durable storage and to the
// live monitor. Storage errors win; broadcast never fails.
type teeRecorder struct {
	store   messageSink
	monitor messageSink
}

func (t teeRecorder) Record(ctx context.Context, msg *entity.Message) error {
	_ = t.monitor.Record(ctx, msg)
	return t.store.Record(ctx, msg)
}
