package store

import "koru-delta/internal/query"

// GetValue implements query.KVSource, adapting Get's richer
// VersionedValue down to the narrow shape the query engine needs.
func (s *Store) GetValue(ns, key string) (query.Versioned, error) {
	v, err := s.Get(ns, key)
	if err != nil {
		return query.Versioned{}, err
	}
	return query.Versioned{Key: v.Key, TimestampNS: v.TimestampNS, Value: v.Value}, nil
}

// PutValue implements query.ViewStore over Put, discarding the version
// info views don't need.
func (s *Store) PutValue(ns, key string, value []byte) error {
	_, err := s.Put(ns, key, value)
	return err
}

// DeleteValue implements query.ViewStore over Delete.
func (s *Store) DeleteValue(ns, key string) error {
	_, err := s.Delete(ns, key)
	return err
}

// GetRawValue implements identity.Store: raw bytes and a found flag,
// without wrapping a NotFound error the caller would just re-check.
func (s *Store) GetRawValue(ns, key string) ([]byte, bool) {
	v, err := s.Get(ns, key)
	if err != nil {
		return nil, false
	}
	return v.Value, true
}
