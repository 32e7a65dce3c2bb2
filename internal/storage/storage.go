// Package storage defines the durable message records the gateway writes
// through its persistence collaborator.
package storage

import (
	"errors"
	"time"
)

var (
	// ErrDirectoryNotFound is returned when a message targets a missing directory.
	ErrDirectoryNotFound = errors.New("directory not found")
	// ErrParentNotFound is returned when a reply targets a missing message.
	ErrParentNotFound = errors.New("parent message not found")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("record not found")
)

// Message is a persisted thread message.
type Message struct {
	ID             int64     `json:"id"`
	Content        string    `json:"content"`
	AuthorUsername string    `json:"author_username"`
	DirectoryID    int64     `json:"directory_id"`
	CreatedAt      time.Time `json:"created_at"`
	ParentID       *int64    `json:"parent_id,omitempty"`
}

// NewMessage is the input to a durable message write.
type NewMessage struct {
	Author      string
	Content     string
	DirectoryID int64
	ParentID    *int64
}

// Directory is a node of the forum tree; threads are directories too.
type Directory struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID *int64 `json:"parent_id,omitempty"`
}
