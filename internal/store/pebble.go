// Package store persists messages and conversation visibility records in a
// Pebble key-value store. Key layout:
//
//	conv:<conversationID>:msg:<unix_nano_padded>  message row
//	viewer:<userID>:conv:<conversationID>         visibility record
//
// The padded timestamp keeps message rows in chronological key order, so
// history pages are reverse range scans.
package store

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/logger"
)

// DB wraps the pebble handle shared by the message store and directory.
type DB struct {
	pb  *pebble.DB
	log *logger.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *logger.Logger) (*DB, error) {
	pb, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	log.Info("store opened", zap.String("path", path))
	return &DB{pb: pb, log: log}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.pb.Close()
}

func msgKey(conversationID string, ts int64) []byte {
	return []byte(fmt.Sprintf("conv:%s:msg:%020d", conversationID, ts))
}

func msgPrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("conv:%s:msg:", conversationID))
}

func visKey(userID, conversationID string) []byte {
	return []byte(fmt.Sprintf("viewer:%s:conv:%s", userID, conversationID))
}

func visPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("viewer:%s:conv:", userID))
}

// get returns the raw value for key, mapping a miss to model.ErrNotFound.
func (d *DB) get(key []byte) ([]byte, error) {
	val, closer, err := d.pb.Get(key)
	if err == pebble.ErrNotFound {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), val...)
	if cerr := closer.Close(); cerr != nil {
		return nil, cerr
	}
	return out, nil
}

func (d *DB) set(key, val []byte) error {
	return d.pb.Set(key, val, pebble.Sync)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
