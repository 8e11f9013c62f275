package audit

import (
	"context"
	"testing"
)

func TestNoopSink_DoesNotPanic(t *testing.T) {
	var s Sink = NoopSink{}
	s.Record(context.Background(), Event{SessionID: "sess-1", Action: "initialize"})
}

func TestPostgresSink_ImplementsSink(t *testing.T) {
	var _ Sink = (*PostgresSink)(nil)
}
