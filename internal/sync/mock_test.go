package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/docmirror/docmirror/internal/remote"
)

// mockGateway is an in-memory stand-in for the remote service. Failures are
// injected per method; calls are recorded for assertions.
type mockGateway struct {
	mu sync.Mutex

	nextStore int
	nextOp    int

	createErr           error
	uploadErr           error
	deleteCollectionErr map[string]error
	deleteItemErr       map[string]error

	createdTitles      []string
	uploadedPaths      []string
	deletedCollections []string
	deletedItems       []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		deleteCollectionErr: make(map[string]error),
		deleteItemErr:       make(map[string]error),
	}
}

func (m *mockGateway) CreateCollection(_ context.Context, title string) (*remote.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextStore++
	m.createdTitles = append(m.createdTitles, title)
	return &remote.Collection{
		Name:        fmt.Sprintf("fileSearchStores/store-%d", m.nextStore),
		DisplayName: title,
		CreateTime:  "2026-01-01T00:00:00Z",
		UpdateTime:  "2026-01-01T00:00:00Z",
	}, nil
}

func (m *mockGateway) DeleteCollection(_ context.Context, remoteName string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.deleteCollectionErr[remoteName]; ok {
		return err
	}
	m.deletedCollections = append(m.deletedCollections, remoteName)
	return nil
}

func (m *mockGateway) UploadItem(_ context.Context, _, path, _, _ string, _ int64) (*remote.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.nextOp++
	m.uploadedPaths = append(m.uploadedPaths, path)
	return &remote.Operation{Name: fmt.Sprintf("operations/op-%d", m.nextOp)}, nil
}

func (m *mockGateway) DeleteItem(_ context.Context, remoteName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.deleteItemErr[remoteName]; ok {
		return err
	}
	m.deletedItems = append(m.deletedItems, remoteName)
	return nil
}
