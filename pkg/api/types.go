package api

import (
	"github.com/ssargent/tfrecord/pkg/codec"
	"github.com/ssargent/tfrecord/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port          int
	Bind          string
	APIKey        string // Empty disables authentication
	MaxBodySize   int64  // Largest request body accepted (0 = MaxRecordSize + framing)
	MaxRecordSize uint64 // Largest record payload accepted (0 = codec default)
}

func (c ServerConfig) maxRecordSize() uint64 {
	if c.MaxRecordSize == 0 {
		return codec.DefaultMaxRecordSize
	}
	return c.MaxRecordSize
}

func (c ServerConfig) maxBodySize() int64 {
	if c.MaxBodySize > 0 {
		return c.MaxBodySize
	}
	return int64(c.maxRecordSize()) + codec.Overhead
}

// IRecordStream defines the record stream operations the API serves
type IRecordStream interface {
	Append(payload []byte) (store.IndexEntry, error)
	Read(offset int64) (*codec.Record, error)
	Entries(from int64, limit int) []store.IndexEntry
	Stats() *store.StreamStats
}

// AppendResponse describes a newly appended record
type AppendResponse struct {
	Ordinal int64 `json:"ordinal"`
	Offset  int64 `json:"offset"`
	Size    int64 `json:"size"`
}

// ListResponse is a page of the record index
type ListResponse struct {
	Records []store.IndexEntry `json:"records"`
	Next    *int64             `json:"next,omitempty"`
}

// VerifyResponse reports the result of checking an uploaded record stream
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	Records   int    `json:"records"`
	ValidSize int    `json:"valid_size"`
	TotalSize int    `json:"total_size"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}
