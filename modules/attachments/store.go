// Package attachments stores files uploaded with chat messages.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrInvalidRef is returned for references that do not name a stored file.
var ErrInvalidRef = errors.New("invalid attachment reference")

// Store persists attachment content and returns the reference saved with the
// message.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// objectName builds a unique, filesystem-safe name that keeps the original
// base name for readability.
func objectName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		base = "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return uuid.NewString() + "-" + base
}

// DiskStore keeps attachments in a directory on local disk.
type DiskStore struct {
	dir    string
	prefix string
}

// NewDiskStore creates a store rooted at dir. References are returned as
// "<prefix>/<object>".
func NewDiskStore(dir, prefix string) *DiskStore {
	return &DiskStore{dir: dir, prefix: prefix}
}

// Init creates the storage directory.
func (s *DiskStore) Init(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return nil
}

// Save writes r to a new file.
func (s *DiskStore) Save(_ context.Context, name string, r io.Reader, size int64, _ string) (string, error) {
	object := objectName(name)
	path := filepath.Join(s.dir, object)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create attachment: %w", err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return s.ref(object), nil
}

// Delete removes the file behind ref. A missing file is not an error.
func (s *DiskStore) Delete(_ context.Context, ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// Path returns the local path of ref.
func (s *DiskStore) Path(ref string) (string, error) {
	object, err := s.object(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, object), nil
}

func (s *DiskStore) ref(object string) string {
	if s.prefix == "" {
		return object
	}
	return s.prefix + "/" + object
}

func (s *DiskStore) object(ref string) (string, error) {
	object := ref
	if s.prefix != "" {
		var ok bool
		if object, ok = strings.CutPrefix(ref, s.prefix+"/"); !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
		}
	}
	if object == "" || object != filepath.Base(object) || strings.HasPrefix(object, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return object, nil
}

// JetStreamStore keeps attachments in a NATS JetStream object store bucket.
type JetStreamStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	store  jetstream.ObjectStore
	bucket string
}

// NewJetStreamStore connects to NATS and prepares a JetStream context.
func NewJetStreamStore(natsURL, bucket string) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL, nats.Name("campus-helpdesk-chat-attachments"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamStore{conn: conn, js: js, bucket: bucket}, nil
}

// Init opens the bucket, creating it when missing.
func (s *JetStreamStore) Init(ctx context.Context) error {
	store, err := s.js.ObjectStore(ctx, s.bucket)
	if err == nil {
		s.store = store
		return nil
	}

	store, err = s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.bucket,
		Description: "Chat message attachments",
	})
	if err != nil {
		return fmt.Errorf("failed to create object store bucket: %w", err)
	}
	s.store = store
	return nil
}

// Save streams r into the bucket.
func (s *JetStreamStore) Save(ctx context.Context, name string, r io.Reader, _ int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := jetstream.ObjectMeta{
		Name: objectName(name),
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}

	info, err := s.store.Put(ctx, meta, r)
	if err != nil {
		return "", fmt.Errorf("failed to store attachment: %w", err)
	}
	return s.bucket + "/" + info.Name, nil
}

// Delete removes the object behind ref.
func (s *JetStreamStore) Delete(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, s.bucket+"/")
	if !ok || name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// IsConnected returns whether the NATS connection is active.
func (s *JetStreamStore) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Close closes the NATS connection.
func (s *JetStreamStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
