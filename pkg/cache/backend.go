package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sw33tLie/emuchievements/internal/utils"
)

// DocumentStore persists the assembled settings document. ReadDocument
// returns an empty slice when nothing has been written yet.
type DocumentStore interface {
	ReadDocument(ctx context.Context) ([]byte, error)
	WriteDocument(ctx context.Context, doc []byte) error
}

// ChunkedBackend is the receiving end of a Transport. It buffers packets
// and stores the document once the last announced packet arrives.
type ChunkedBackend struct {
	store DocumentStore

	mu       sync.Mutex
	packets  []string
	writeBuf strings.Builder
	writeLen int
}

// NewChunkedBackend serves the chunked protocol on top of store.
func NewChunkedBackend(store DocumentStore) *ChunkedBackend {
	return &ChunkedBackend{store: store}
}

func (b *ChunkedBackend) StartRead(ctx context.Context, packetSize int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.packets = nil
	raw, err := b.store.ReadDocument(ctx)
	if err != nil {
		return 0, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0, nil
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "\t"); err != nil {
		return 0, fmt.Errorf("stored settings document is corrupt: %w", err)
	}
	b.packets = splitPackets(indented.String(), packetSize)
	return len(b.packets), nil
}

func (b *ChunkedBackend) ReadChunk(_ context.Context, index int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.packets) {
		return "", fmt.Errorf("read packet %d: %w", index, errPacketRange)
	}
	chunk := b.packets[index]
	if index == len(b.packets)-1 {
		b.packets = nil
	}
	return chunk, nil
}

func (b *ChunkedBackend) StartWrite(_ context.Context, length, _ int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writeBuf.Reset()
	b.writeLen = length
	return nil
}

func (b *ChunkedBackend) WriteChunk(ctx context.Context, index int, data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeLen == 0 {
		return errNoWrite
	}
	if index < 0 || index >= b.writeLen {
		return fmt.Errorf("write packet %d: %w", index, errPacketRange)
	}
	b.writeBuf.WriteString(data)
	if index < b.writeLen-1 {
		return nil
	}

	raw := []byte(b.writeBuf.String())
	b.writeBuf.Reset()
	b.writeLen = 0

	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "\t"); err != nil {
		return fmt.Errorf("received settings document is not valid JSON: %w", err)
	}
	return b.store.WriteDocument(ctx, indented.Bytes())
}

// FileStore keeps the document in a JSON file guarded by a lock file, so
// several processes can share it.
type FileStore struct {
	path string
	lock *utils.FileLock
}

// NewFileStore returns a store for the document at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	lock, err := utils.NewFileLock(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, lock: lock}, nil
}

func (s *FileStore) ReadDocument(ctx context.Context) ([]byte, error) {
	if err := s.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return raw, nil
}

func (s *FileStore) WriteDocument(ctx context.Context, doc []byte) error {
	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer s.lock.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
