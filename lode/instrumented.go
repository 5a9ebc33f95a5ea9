package lode

import (
	"context"

	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/types"
)

// InstrumentedClient wraps a Client and records archive write metrics.
// Each write call increments archive_write_success or archive_write_failure
// on the collector.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

func (c *InstrumentedClient) record(err error) error {
	if err != nil {
		c.collector.IncArchiveWriteFailure()
	} else {
		c.collector.IncArchiveWriteSuccess()
	}
	return err
}

// WriteFailures delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteFailures(ctx context.Context, failures []types.FailureRecord) error {
	return c.record(c.inner.WriteFailures(ctx, failures))
}

// WriteStatuses delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteStatuses(ctx context.Context, statuses []types.StatusMessage) error {
	return c.record(c.inner.WriteStatuses(ctx, statuses))
}

// WriteOutcome delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteOutcome(ctx context.Context, outcome OutcomeRecord) error {
	return c.record(c.inner.WriteOutcome(ctx, outcome))
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)
