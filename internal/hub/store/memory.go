package store

import (
	"encoding/json"
	"sort"

	"github.com/projectify/live/pkg/protocol"
)

// Memory keeps documents in a map. It is the default for tests and
// throwaway hubs.
type Memory struct {
	docs map[protocol.Resource]json.RawMessage
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[protocol.Resource]json.RawMessage)}
}

func (m *Memory) Get(res protocol.Resource) (json.RawMessage, bool, error) {
	doc, ok := m.docs[res]
	return doc, ok, nil
}

func (m *Memory) Put(res protocol.Resource, content json.RawMessage) error {
	m.docs[res] = append(json.RawMessage(nil), content...)
	return nil
}

func (m *Memory) Delete(res protocol.Resource) (bool, error) {
	if _, ok := m.docs[res]; !ok {
		return false, nil
	}
	delete(m.docs, res)
	return true, nil
}

func (m *Memory) List(t protocol.ResourceType) ([]string, error) {
	var out []string
	for res := range m.docs {
		if res.Type == t {
			out = append(out, res.UUID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
