// Package cmd provides CLI commands for the runledger binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag points at a runledger.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to runledger.yaml (flags override config values)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// storageFlags select and address the archive.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Archive backend: fs, s3 or memory (empty disables archiving)",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Archive path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Archive dataset ID",
			Value: "runledger",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint URL for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Force path-style addressing for S3",
		},
	}
}

// adapterFlags configure event publication.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Event adapter: webhook or redis (empty disables publishing)",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook URL or Redis connection URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-request timeout",
			Value: defaultAdapterTimeout,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Retry attempts after the first failure",
			Value: defaultAdapterRetries,
		},
	}
}
