// Package model defines shared types used across the store, engines, and API.
package model

import (
	"time"
)

// SyncStatus tracks whether a local record has been pushed to the remote
// service.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// ItemStatus tracks remote ingestion progress of an item. Meaningful only
// after the upload has started.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// Terminal reports whether the status is a final state the polling engine no
// longer needs to resolve.
func (s ItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Collection is the local mirror of a remote document-search store.
type Collection struct {
	ID            string     `json:"id"`
	RemoteName    string     `json:"remoteName,omitempty"`
	Title         string     `json:"title"`
	DirectoryPath string     `json:"directoryPath,omitempty"`
	SyncStatus    SyncStatus `json:"syncStatus"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`

	// Aggregate counts mirrored from the remote service at creation time.
	ActiveItemsCount  int64 `json:"activeItemsCount"`
	PendingItemsCount int64 `json:"pendingItemsCount"`
	FailedItemsCount  int64 `json:"failedItemsCount"`
	SizeBytes         int64 `json:"sizeBytes"`

	// Remote-reported timestamps, kept as opaque RFC 3339 strings.
	RemoteCreateTime string `json:"remoteCreateTime,omitempty"`
	RemoteUpdateTime string `json:"remoteUpdateTime,omitempty"`

	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CollectionOverview is a Collection plus counts derived from local items,
// returned by list reads for the presentation layer.
type CollectionOverview struct {
	Collection

	// Status is "processing" while any local item is non-terminal,
	// "completed" otherwise.
	Status string `json:"status"`

	ItemCount         int64 `json:"itemCount"`
	LocalPendingCount int64 `json:"localPendingCount"`
	LocalFailedCount  int64 `json:"localFailedCount"`
}

// Item is the local mirror of a single uploaded document and its remote
// ingestion state.
type Item struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId"`
	RemoteName   string `json:"remoteName,omitempty"`

	// OperationName is the handle to the outstanding remote ingestion job.
	// Present exactly while Status is processing.
	OperationName string `json:"operationName,omitempty"`

	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"contentType,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash,omitempty"`

	Status       ItemStatus `json:"status"`
	SyncStatus   SyncStatus `json:"syncStatus"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
