package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
)

var ErrSummaryNotFound = errors.New("summary not found")

const megabyte = 1024 * 1024

// Store keeps the latest summary of every flow for the results view.
type Store struct {
	cache *freecache.Cache
	ttl   time.Duration
}

func NewStore(sizeMegabytes int, ttl time.Duration) *Store {
	if sizeMegabytes <= 0 {
		sizeMegabytes = 10
	}
	return &Store{
		cache: freecache.NewCache(sizeMegabytes * megabyte),
		ttl:   ttl,
	}
}

func (s *Store) Put(flowID string, summary Summary) error {
	summaryBytes, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.cache.Set([]byte(flowID), summaryBytes, int(s.ttl.Seconds())); err != nil {
		return fmt.Errorf("cache summary: %w", err)
	}
	return nil
}

func (s *Store) Get(flowID string) (Summary, error) {
	summaryBytes, err := s.cache.Get([]byte(flowID))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return Summary{}, ErrSummaryNotFound
		}
		return Summary{}, err
	}

	var summary Summary
	if err := json.Unmarshal(summaryBytes, &summary); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return summary, nil
}

func (s *Store) Delete(flowID string) bool {
	return s.cache.Del([]byte(flowID))
}

func (s *Store) Count() int64 {
	return s.cache.EntryCount()
}
