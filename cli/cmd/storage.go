package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/cli/config"
	"github.com/pithecene-io/runledger/lode"
	"github.com/pithecene-io/runledger/metrics"
)

// storageChoice holds the resolved archive configuration.
type storageChoice struct {
	dataset   string
	backend   string // "fs", "s3", "memory" or "" (disabled)
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// enabled reports whether archiving was requested.
func (s storageChoice) enabled() bool {
	return s.backend != ""
}

func resolveStorageChoice(c *cli.Context, cfg *config.Config) storageChoice {
	return storageChoice{
		dataset:   resolveString(c, "storage-dataset", configVal(cfg, func(c *config.Config) string { return c.Storage.Dataset })),
		backend:   resolveString(c, "storage-backend", configVal(cfg, func(c *config.Config) string { return c.Storage.Backend })),
		path:      resolveString(c, "storage-path", configVal(cfg, func(c *config.Config) string { return c.Storage.Path })),
		region:    resolveString(c, "storage-region", configVal(cfg, func(c *config.Config) string { return c.Storage.Region })),
		endpoint:  resolveString(c, "storage-endpoint", configVal(cfg, func(c *config.Config) string { return c.Storage.Endpoint })),
		pathStyle: resolveBool(c, "storage-s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Storage.S3PathStyle })),
	}
}

// validateStorageChoice returns an actionable error for incomplete storage flags.
func validateStorageChoice(s storageChoice) error {
	switch s.backend {
	case "", "memory":
		return nil
	case "fs", "s3":
		if s.path == "" {
			return fmt.Errorf("--storage-path is required when --storage-backend=%s", s.backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown --storage-backend %q (must be fs, s3 or memory)", s.backend)
	}
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// archiveTarget is an open archive plus where it writes.
type archiveTarget struct {
	archive     *lode.Archive
	storagePath string
}

// openArchive builds the archive for one attempt. Writes are counted on collector.
func openArchive(ctx context.Context, s storageChoice, cfg lode.Config, collector *metrics.Collector) (*archiveTarget, error) {
	var (
		client *lode.LodeClient
		err    error
	)
	switch s.backend {
	case "fs":
		client, err = lode.NewLodeClient(cfg, s.path)
	case "s3":
		client, err = lode.NewLodeS3Client(ctx, cfg, s.s3Config())
	case "memory":
		client, err = lode.NewLodeClientWithFactory(cfg, lodelibrary.NewMemoryFactory())
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", s.backend)
	}
	if err != nil {
		return nil, err
	}

	return &archiveTarget{
		archive:     lode.NewArchive(lode.NewInstrumentedClient(client, collector), client),
		storagePath: buildStoragePath(s, client.AttemptPath()),
	}, nil
}

// buildStoragePath renders the attempt's archive location as a URI.
// Unknown backends return the bare partition path.
func buildStoragePath(s storageChoice, attemptPath string) string {
	switch s.backend {
	case "fs":
		root, err := filepath.Abs(s.path)
		if err != nil {
			root = s.path
		}
		return "file://" + filepath.ToSlash(filepath.Join(root, attemptPath))
	case "s3":
		bucket, prefix := lode.ParseS3Path(s.path)
		if prefix == "" {
			return "s3://" + bucket + "/" + attemptPath
		}
		return "s3://" + bucket + "/" + strings.Trim(prefix, "/") + "/" + attemptPath
	case "memory":
		return "memory://" + attemptPath
	default:
		return attemptPath
	}
}

// buildReadDataset opens the archive dataset for queries.
func buildReadDataset(ctx context.Context, s storageChoice) (lodelibrary.Dataset, error) {
	switch s.backend {
	case "fs":
		return lode.NewReadDatasetFS(s.dataset, s.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, s.dataset, s.s3Config())
	default:
		return nil, fmt.Errorf("unsupported --storage-backend %q for reading (must be fs or s3)", s.backend)
	}
}
