package lode

import (
	"context"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/runledger/types"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"connection", "day", "job_id", "attempt", "record_kind"}

// LodeClient is a Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: connection/day/job_id/attempt/record_kind.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	cfg = cfg.withDefaults()
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg, storeFactory: factory}, nil
}

func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteFailures writes one record per failure, keeping the given order in
// the index field. An empty list writes nothing.
func (c *LodeClient) WriteFailures(ctx context.Context, failures []types.FailureRecord) error {
	records := make([]any, 0, len(failures))
	for i, f := range failures {
		records = append(records, toFailureRecordMap(f, i, c.config))
	}
	return c.write(ctx, RecordKindFailure, records)
}

// WriteStatuses writes one record per finalized stream status.
func (c *LodeClient) WriteStatuses(ctx context.Context, statuses []types.StatusMessage) error {
	records := make([]any, 0, len(statuses))
	for _, s := range statuses {
		records = append(records, toStatusRecordMap(s, c.config))
	}
	return c.write(ctx, RecordKindStreamStatus, records)
}

// WriteOutcome writes the attempt outcome record.
func (c *LodeClient) WriteOutcome(ctx context.Context, outcome OutcomeRecord) error {
	return c.write(ctx, RecordKindOutcome, []any{toOutcomeRecordMap(outcome, c.config)})
}

func (c *LodeClient) write(ctx context.Context, kind string, records []any) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(kind))
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
