// Package preset persists, per organ, 10 ChannelMap preset slots and each
// stop's MIDI-learn binding (spec §4.7). The store is single-writer; no
// concurrent access is expected.
package preset

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/organfox/organfox/internal/organ"
)

// SlotCount is the number of preset slots per organ (spec §4.7).
const SlotCount = 10

const bucketName = "organs"

// BindingData is the persisted form of organ.LearnBinding. ID is a random
// identifier minted on save, distinct from the stop ID key it's stored
// under, so a binding can be referenced (logged, reported back to a UI)
// independently of the stop it happens to currently be attached to.
type BindingData struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Status   byte   `json:"status"`
	Data1    byte   `json:"data1"`
}

// Document is one organ's full persisted state: preset slots (virtual
// channel -> enabled stop IDs) and MIDI-learn bindings keyed by stop ID.
type Document struct {
	Slots    [SlotCount]map[int][]string `json:"slots"`
	Bindings map[string]BindingData      `json:"bindings"`
}

// Store wraps a single-writer bbolt database, one bucket holding one
// document per organ name (spec §4.7: "a structured document keyed by
// organ name").
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the preset database at path.
func Open(path string) (*Store, error) {
	options := bbolt.DefaultOptions
	options.Timeout = 500 * time.Millisecond
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, errors.Wrapf(err, "open preset store %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create preset bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads an organ's document, returning an empty Document (never nil)
// if none was ever saved.
func (s *Store) Load(organName string) (*Document, error) {
	doc := &Document{Bindings: make(map[string]BindingData)}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		raw := bucket.Get([]byte(organName))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, doc)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load preset document for %s", organName)
	}
	if doc.Bindings == nil {
		doc.Bindings = make(map[string]BindingData)
	}
	return doc, nil
}

// SaveSlot writes one preset slot's routing table, preserving every other
// field already on disk (spec §4.7: "unknown fields are preserved on
// re-save").
func (s *Store) SaveSlot(organName string, slot int, routes map[int][]string) error {
	if slot < 0 || slot >= SlotCount {
		return errors.Errorf("preset slot %d out of range [0,%d)", slot, SlotCount)
	}
	return s.mutate(organName, func(raw map[string]json.RawMessage) error {
		var slots [SlotCount]map[int][]string
		if existing, ok := raw["slots"]; ok {
			_ = json.Unmarshal(existing, &slots)
		}
		slots[slot] = routes
		enc, err := json.Marshal(slots)
		if err != nil {
			return err
		}
		raw["slots"] = enc
		return nil
	})
}

// LoadSlot reads one preset slot's routing table.
func (s *Store) LoadSlot(organName string, slot int) (map[int][]string, error) {
	doc, err := s.Load(organName)
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot >= SlotCount {
		return nil, errors.Errorf("preset slot %d out of range [0,%d)", slot, SlotCount)
	}
	return doc.Slots[slot], nil
}

// SaveBinding records stopID's MIDI-learn binding, triggered on learn
// completion (spec §4.7).
func (s *Store) SaveBinding(organName, stopID string, binding organ.LearnBinding) error {
	return s.mutate(organName, func(raw map[string]json.RawMessage) error {
		bindings := make(map[string]BindingData)
		if existing, ok := raw["bindings"]; ok {
			_ = json.Unmarshal(existing, &bindings)
		}
		id := bindings[stopID].ID
		if id == "" {
			id = uuid.New().String()
		}
		bindings[stopID] = BindingData{ID: id, DeviceID: binding.DeviceID, Status: binding.Status, Data1: binding.Data1}
		enc, err := json.Marshal(bindings)
		if err != nil {
			return err
		}
		raw["bindings"] = enc
		return nil
	})
}

// mutate loads the organ's document as a raw field map, lets fn modify
// only the keys it knows about, and writes the merged map back — any
// unrecognized top-level key already on disk survives untouched.
func (s *Store) mutate(organName string, fn func(raw map[string]json.RawMessage) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		raw := make(map[string]json.RawMessage)
		if existing := bucket.Get([]byte(organName)); existing != nil {
			if err := json.Unmarshal(existing, &raw); err != nil {
				return errors.Wrapf(err, "decode existing document for %s", organName)
			}
		}
		if err := fn(raw); err != nil {
			return err
		}
		enc, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(organName), enc)
	})
}
