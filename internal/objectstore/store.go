// Package objectstore stores attachment bytes under a path inside a bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the bucket attachments are written to.
const DefaultBucket = "task-attachments"

var ErrObjectNotFound = errors.New("object not found")

// Store defines the byte storage operations the task store needs.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Remove(ctx context.Context, paths ...string) error
}

// JetStreamStore implements Store using a NATS JetStream object store bucket.
type JetStreamStore struct {
	conn       *nats.Conn
	js         jetstream.JetStream
	store      jetstream.ObjectStore
	bucketName string
}

// NewJetStreamStore connects to NATS and opens (or creates) the bucket.
func NewJetStreamStore(ctx context.Context, natsURL, bucketName string) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &JetStreamStore{
		conn:       conn,
		js:         js,
		bucketName: bucketName,
	}
	if err := s.init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *JetStreamStore) init(ctx context.Context) error {
	store, err := s.js.ObjectStore(ctx, s.bucketName)
	if err == nil {
		s.store = store
		return nil
	}

	store, err = s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.bucketName,
		Description: "Task attachment storage bucket",
	})
	if err != nil {
		return fmt.Errorf("failed to create object store bucket: %w", err)
	}

	s.store = store
	return nil
}

// Upload stores data at path.
func (s *JetStreamStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := jetstream.ObjectMeta{
		Name: path,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}

	if _, err := s.store.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

// Remove deletes every object in paths. It stops at the first failure.
func (s *JetStreamStore) Remove(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if err := s.store.Delete(ctx, p); err != nil {
			if errors.Is(err, jetstream.ErrObjectNotFound) {
				return fmt.Errorf("%w: %s", ErrObjectNotFound, p)
			}
			return fmt.Errorf("failed to delete object: %w", err)
		}
	}
	return nil
}

// Close closes the NATS connection.
func (s *JetStreamStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
