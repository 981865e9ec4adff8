package offsets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/driftq/broker/internal/logger"
	"github.com/rs/zerolog"
)

// CommittedOffset is one persisted (group, topic, partition) -> offset entry
type CommittedOffset struct {
	Group     string
	Topic     string
	Partition int32
	Offset    int64
}

// Store persists committed consumer offsets in a Pebble database so a
// restarted coordinator resumes from prior progress.
type Store struct {
	db  *pebble.DB
	dir string
	log zerolog.Logger
}

// Open opens (or creates) the offset store rooted at dir
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create offsets directory: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open offsets db: %w", err)
	}

	return &Store{
		db:  db,
		dir: dir,
		log: logger.WithComponent("offsets"),
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close offsets db")
		return err
	}
	return nil
}

// Put writes one committed offset durably
func (s *Store) Put(group, topic string, partition int32, offset int64) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(offset))

	if err := s.db.Set(offsetKey(group, topic, partition), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to persist offset: %w", err)
	}
	return nil
}

// Get reads one committed offset; the second return is false when no
// offset was ever committed for the partition
func (s *Store) Get(group, topic string, partition int32) (int64, bool, error) {
	value, closer, err := s.db.Get(offsetKey(group, topic, partition))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read offset: %w", err)
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, false, fmt.Errorf("corrupt offset entry for %s/%s/%d", group, topic, partition)
	}
	return int64(binary.BigEndian.Uint64(value)), true, nil
}

// DeleteGroup removes all persisted offsets for one group
func (s *Store) DeleteGroup(group string) error {
	prefix := []byte(group + "|")
	upper := []byte(group + "}") // '}' sorts just past '|'

	if err := s.db.DeleteRange(prefix, upper, pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete offsets for group %s: %w", group, err)
	}
	return nil
}

// All returns every persisted offset entry
func (s *Store) All() ([]CommittedOffset, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate offsets: %w", err)
	}
	defer iter.Close()

	var entries []CommittedOffset
	for iter.First(); iter.Valid(); iter.Next() {
		entry, err := parseOffsetKey(string(iter.Key()))
		if err != nil {
			s.log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping unparseable offset key")
			continue
		}
		value := iter.Value()
		if len(value) != 8 {
			s.log.Warn().Str("key", string(iter.Key())).Msg("Skipping corrupt offset value")
			continue
		}
		entry.Offset = int64(binary.BigEndian.Uint64(value))
		entries = append(entries, entry)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("offset iteration failed: %w", err)
	}
	return entries, nil
}

func offsetKey(group, topic string, partition int32) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", group, topic, partition))
}

func parseOffsetKey(key string) (CommittedOffset, error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return CommittedOffset{}, fmt.Errorf("malformed offset key: %s", key)
	}
	partition, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return CommittedOffset{}, fmt.Errorf("malformed partition in offset key %s: %w", key, err)
	}
	return CommittedOffset{
		Group:     parts[0],
		Topic:     parts[1],
		Partition: int32(partition),
	}, nil
}
