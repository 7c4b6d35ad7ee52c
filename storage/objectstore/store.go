package objectstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/storage"
)

var _ storage.Store = (*Store)(nil)

// Object is a stored value with its headers.
type Object struct {
	Key     string            `json:"key"`
	Size    uint64            `json:"size"`
	ModTime time.Time         `json:"mod_time"`
	Headers map[string]string `json:"headers,omitempty"`
	Digest  string            `json:"digest,omitempty"`
	Data    []byte            `json:"data,omitempty"`
	Bucket  string            `json:"bucket,omitempty"`
	NUID    string            `json:"nuid,omitempty"`
}

// Store implements storage.Store on a JetStream ObjectStore bucket.
type Store struct {
	bucket  string
	obs     jetstream.ObjectStore
	metrics *storeMetrics
}

// NewStore wraps an open bucket. metrics may be nil.
func NewStore(obs jetstream.ObjectStore, bucket string, metrics *storeMetrics) *Store {
	return &Store{bucket: bucket, obs: obs, metrics: metrics}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Put stores data at key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.PutObject(ctx, key, data, nil)
	return err
}

// PutObject stores data at key with headers kept alongside it.
func (s *Store) PutObject(ctx context.Context, key string, data []byte, headers map[string]string) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}

	start := time.Now()
	meta := jetstream.ObjectMeta{Name: key}
	if len(headers) > 0 {
		meta.Headers = nats.Header{}
		for k, v := range headers {
			meta.Headers[k] = []string{v}
		}
	}

	info, err := s.obs.Put(ctx, meta, bytes.NewReader(data))
	s.metrics.observe("put", start, err)
	if err != nil {
		return Object{}, errors.WrapTransient(err, "Store", "Put", fmt.Sprintf("put %s", key))
	}
	s.metrics.wrote(len(data))
	return objectFromInfo(info), nil
}

// Get returns the data at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.obs.GetBytes(ctx, key)
	s.metrics.observe("get", start, notFoundIsNil(err))
	if err != nil {
		return nil, s.readError(err, "Get", key)
	}
	return data, nil
}

// GetObject returns the data at key together with its metadata.
func (s *Store) GetObject(ctx context.Context, key string) (Object, error) {
	info, err := s.Info(ctx, key)
	if err != nil {
		return Object{}, err
	}
	data, err := s.Get(ctx, key)
	if err != nil {
		return Object{}, err
	}
	info.Data = data
	return info, nil
}

// Info returns the metadata of key without its data.
func (s *Store) Info(ctx context.Context, key string) (Object, error) {
	start := time.Now()
	info, err := s.obs.GetInfo(ctx, key)
	s.metrics.observe("info", start, notFoundIsNil(err))
	if err != nil {
		return Object{}, s.readError(err, "Info", key)
	}
	return objectFromInfo(info), nil
}

// List returns the live keys starting with prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	infos, err := s.obs.List(ctx)
	if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
		err = nil
	}
	s.metrics.observe("list", start, err)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "List", "list objects")
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		keys = append(keys, info.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := notFoundIsNil(s.obs.Delete(ctx, key))
	s.metrics.observe("delete", start, err)
	if err != nil {
		return errors.WrapTransient(err, "Store", "Delete", fmt.Sprintf("delete %s", key))
	}
	return nil
}

func (s *Store) readError(err error, method, key string) error {
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "Store", method, "object lookup")
	}
	return errors.WrapTransient(err, "Store", method, fmt.Sprintf("read %s", key))
}

func notFoundIsNil(err error) error {
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return nil
	}
	return err
}

func objectFromInfo(info *jetstream.ObjectInfo) Object {
	if info == nil {
		return Object{}
	}
	obj := Object{
		Key:     info.Name,
		Size:    info.Size,
		ModTime: info.ModTime,
		Digest:  info.Digest,
		Bucket:  info.Bucket,
		NUID:    info.NUID,
	}
	if len(info.Headers) > 0 {
		obj.Headers = make(map[string]string, len(info.Headers))
		for k, v := range info.Headers {
			if len(v) > 0 {
				obj.Headers[k] = v[0]
			}
		}
	}
	return obj
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid key %q", errors.ErrInvalidData, key), "Store", "Put", "key validation")
	}
	return nil
}
