package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// FileWriter writes sidecar files next to an attempt's records.
// Files land at Hive-partitioned paths under files/, bypassing Dataset
// segment/manifest machinery entirely.
type FileWriter interface {
	// PutFile writes a file to the attempt's files/ prefix.
	// The filename must not contain path separators or "..".
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

// Verify LodeClient implements FileWriter.
var _ FileWriter = (*LodeClient)(nil)

// PutFile writes a sidecar file to the Lode Store at the computed Hive path.
// Uses lazy store initialization via storeFactory.
func (c *LodeClient) PutFile(ctx context.Context, filename, _ string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	store, err := c.getOrCreateStore()
	if err != nil {
		return WrapInitError(fmt.Errorf("file write store init failed: %w", err), c.config.Dataset)
	}

	path := c.buildFilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

func validateFilename(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid sidecar filename %q", name)
	}
	return nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		if c.storeFactory == nil {
			c.storeErr = errors.New("no store factory configured")
			return
		}
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// attemptPrefix is the Hive path of the attempt, without the record_kind segment.
func (c *LodeClient) attemptPrefix() string {
	return fmt.Sprintf("datasets/%s/partitions/connection=%s/day=%s/job_id=%s/attempt=%s",
		c.config.Dataset,
		c.config.ConnectionID,
		c.config.Day,
		c.config.JobID,
		strconv.Itoa(c.config.Attempt),
	)
}

// AttemptPath returns the storage path of the attempt's partitions, relative
// to the store root.
func (c *LodeClient) AttemptPath() string {
	return c.attemptPrefix()
}

// partitionPath is the Hive path of one record kind, used for error context.
func (c *LodeClient) partitionPath(kind string) string {
	return c.attemptPrefix() + "/record_kind=" + kind
}

// buildFilePath computes the Hive-partitioned path for a sidecar file.
// Format: datasets/<dataset>/partitions/connection=<c>/day=<d>/job_id=<j>/attempt=<a>/files/<filename>
func (c *LodeClient) buildFilePath(filename string) string {
	return c.attemptPrefix() + "/files/" + filename
}

// StubFileWriter records PutFile calls for testing.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

// StubFileRecord is a recorded file write for testing.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a new stub file writer.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	return nil
}

// Verify StubFileWriter implements FileWriter.
var _ FileWriter = (*StubFileWriter)(nil)
