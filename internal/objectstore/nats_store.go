// Package objectstore mirrors reference recordings into a NATS JetStream
// object-store bucket so other voice services can fetch them by key.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	bucketDescription = "Voice-cloning reference recordings."
	objectDescription = "reference audio"
)

const (
	errFmtCreateBucket = "failed to create object store bucket '%s': %w"
	errFmtBindBucket   = "failed to bind to existing object store bucket '%s': %w"
	errFmtGetObject    = "failed to get object '%s' from bucket '%s': %w"
	errFmtReadObject   = "failed to read object '%s': %w"
	errFmtCloseObject  = "failed to close object '%s': %w"
	errFmtPutObject    = "failed to put object '%s' to bucket '%s': %w"
	errFmtDeleteObject = "failed to delete object '%s' from bucket '%s': %w"
	errFmtListObjects  = "failed to list bucket '%s': %w"
	errFmtCancelled    = "object store call cancelled: %w"
)

// BucketStore implements core.ObjectStore on a JetStream object-store bucket.
type BucketStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*BucketStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: bucketDescription,
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf(errFmtCreateBucket, bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(errFmtBindBucket, bucketName, err)
		}
	}

	return &BucketStore{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (b *BucketStore) Bucket() string {
	return b.bucket
}

// Upload stores data under key, replacing any previous object.
func (b *BucketStore) Upload(ctx context.Context, key string, data []byte) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return fmt.Errorf(errFmtCancelled, ctxErr)
	}

	_, err := b.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: objectDescription,
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf(errFmtPutObject, key, b.bucket, err)
	}

	return nil
}

// Download retrieves the object stored under key.
func (b *BucketStore) Download(ctx context.Context, key string) ([]byte, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf(errFmtCancelled, ctxErr)
	}

	obj, err := b.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf(errFmtGetObject, key, b.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf(errFmtReadObject, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf(errFmtCloseObject, key, closeErr)
	}

	return data, nil
}

// Delete removes the object stored under key.
func (b *BucketStore) Delete(ctx context.Context, key string) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return fmt.Errorf(errFmtCancelled, ctxErr)
	}

	err := b.store.Delete(key)
	if err != nil {
		return fmt.Errorf(errFmtDeleteObject, key, b.bucket, err)
	}

	return nil
}

// Keys lists the stored object names in sorted order. An empty bucket
// yields an empty slice.
func (b *BucketStore) Keys(ctx context.Context) ([]string, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf(errFmtCancelled, ctxErr)
	}

	infos, err := b.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return []string{}, nil
		}

		return nil, fmt.Errorf(errFmtListObjects, b.bucket, err)
	}

	keys := make([]string, 0, len(infos))

	for _, info := range infos {
		if info.Deleted {
			continue
		}

		keys = append(keys, info.Name)
	}

	sort.Strings(keys)

	return keys, nil
}
