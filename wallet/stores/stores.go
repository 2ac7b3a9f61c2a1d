package stores

import (
	"sort"
	"strings"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain"
)

// Store persists wallet records as raw values grouped in buckets
type Store interface {
	Put(bucket, key string, val []byte) error
	Get(bucket, key string) ([]byte, error)
	List(bucket string) ([][]byte, error)
	Delete(bucket, key string) error
	Close() error
}

const sep = `/`

func recordKey(bucket, key string) string {
	return bucket + sep + key
}

// Memory keeps records in process and is used when no store path is configured
type Memory struct {
	records map[string][]byte
	*sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{records: map[string][]byte{}, RWMutex: &sync.RWMutex{}}
}

func (m *Memory) Put(bucket, key string, val []byte) error {
	m.Lock()
	defer m.Unlock()
	m.records[recordKey(bucket, key)] = append([]byte{}, val...)
	return nil
}

func (m *Memory) Get(bucket, key string) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	val, ok := m.records[recordKey(bucket, key)]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return append([]byte{}, val...), nil
}

func (m *Memory) List(bucket string) ([][]byte, error) {
	m.RLock()
	defer m.RUnlock()

	var keys []string
	for k := range m.records {
		if strings.HasPrefix(k, bucket+sep) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var vals [][]byte
	for _, k := range keys {
		vals = append(vals, append([]byte{}, m.records[k]...))
	}
	return vals, nil
}

func (m *Memory) Delete(bucket, key string) error {
	m.Lock()
	defer m.Unlock()
	delete(m.records, recordKey(bucket, key))
	return nil
}

func (m *Memory) Close() error {
	return nil
}
