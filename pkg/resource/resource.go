// Package resource resolves logical resource ids to data served by a set of
// prioritized providers.
package resource

import (
	"errors"
	"io"
	"time"
)

// Wildcard is the id a generic provider lists to catch unclaimed ids.
const Wildcard = "*"

var (
	// ErrResourceNotFound is returned when no provider can serve an id.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceTypeMismatch is returned when the data shape differs from
	// the one requested.
	ErrResourceTypeMismatch = errors.New("resource type mismatch")
)

// Data is a resolved resource.
type Data interface {
	ResourceID() string
}

// StaticData is a fully loaded resource.
type StaticData struct {
	id   string
	data []byte
}

// NewStaticData wraps bytes loaded for id.
func NewStaticData(id string, data []byte) *StaticData {
	return &StaticData{id: id, data: data}
}

// ResourceID implements Data.
func (d *StaticData) ResourceID() string { return d.id }

// Bytes returns the resource content.
func (d *StaticData) Bytes() []byte { return d.data }

// String returns the resource content as text.
func (d *StaticData) String() string { return string(d.data) }

// Size returns the content length.
func (d *StaticData) Size() int64 { return int64(len(d.data)) }

// StreamData is a resource read incrementally. Callers must close it.
type StreamData struct {
	io.ReadCloser
	id   string
	size int64
}

// NewStreamData wraps an open reader for id. size is -1 when unknown.
func NewStreamData(id string, rc io.ReadCloser, size int64) *StreamData {
	return &StreamData{ReadCloser: rc, id: id, size: size}
}

// ResourceID implements Data.
func (d *StreamData) ResourceID() string { return d.id }

// Size returns the total length, or -1 when unknown.
func (d *StreamData) Size() int64 { return d.size }

// Provider serves a fixed set of ids at one priority.
type Provider interface {
	// ResourceList returns the ids this provider claims. Wildcard claims
	// every id nobody else does.
	ResourceList() []string
	Priority() int32
	// Get returns a *StaticData, or a *StreamData when stream is set.
	Get(id string, stream bool) (Data, error)
	// Timestamp returns the modification time, or the zero time if unknown.
	Timestamp(id string) time.Time
}
