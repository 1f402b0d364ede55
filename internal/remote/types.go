package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexInt64 decodes a JSON field that the remote service emits sometimes as a
// number and sometimes as a decimal string. The ambiguity stops here; the
// rest of the codebase only ever sees int64.
type FlexInt64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding numeric string: %w", err)
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %q as int64: %w", s, err)
		}
		*f = FlexInt64(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*f = FlexInt64(n)
	return nil
}

// Collection is the remote representation of a document-search store.
type Collection struct {
	Name              string    `json:"name"`
	DisplayName       string    `json:"displayName,omitempty"`
	CreateTime        string    `json:"createTime,omitempty"`
	UpdateTime        string    `json:"updateTime,omitempty"`
	ActiveItemsCount  FlexInt64 `json:"activeDocumentsCount"`
	PendingItemsCount FlexInt64 `json:"pendingDocumentsCount"`
	FailedItemsCount  FlexInt64 `json:"failedDocumentsCount"`
	SizeBytes         FlexInt64 `json:"sizeBytes"`
}

// Item is the remote representation of an uploaded document.
type Item struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName,omitempty"`
	State       string    `json:"state,omitempty"`
	MIMEType    string    `json:"mimeType,omitempty"`
	SizeBytes   FlexInt64 `json:"sizeBytes"`
	CreateTime  string    `json:"createTime,omitempty"`
	UpdateTime  string    `json:"updateTime,omitempty"`
}

// Operation is the handle to an asynchronous remote job (document upload and
// ingestion). Poll it with [Client.GetOperation] until Done.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error,omitempty"`
	Response *OperationResponse `json:"response,omitempty"`
}

// OperationError is the failure detail of a finished operation.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OperationResponse carries the result of a successful upload operation.
type OperationResponse struct {
	DocumentName string `json:"documentName,omitempty"`
}

type createCollectionRequest struct {
	DisplayName string `json:"displayName,omitempty"`
}

type uploadMetadata struct {
	DisplayName string `json:"displayName,omitempty"`
}
