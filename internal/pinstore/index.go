package pinstore

import "github.com/shog-ai/shoggoth/internal/storeclient"

const indexKey = "pins"

// Index mirrors the PinIndex document in the KV store (spec.md §3):
// `{"pins": [id, ...]}`, the set of locally-pinned ShoggothIDs.
type Index struct {
	client *storeclient.Client
}

func NewIndex(client *storeclient.Client) *Index {
	return &Index{client: client}
}

// Init writes an empty PinIndex document if the key is absent.
func (idx *Index) Init() error {
	var existing []string
	if err := idx.client.Get(indexKey, "", &existing); err == nil && existing != nil {
		return nil
	}
	return idx.client.Set(indexKey, "", []string{})
}

// Load returns the current set of pinned ShoggothIDs.
func (idx *Index) Load() ([]string, error) {
	var ids []string
	if err := idx.client.Get(indexKey, "", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Add idempotently adds id to the PinIndex.
func (idx *Index) Add(id string) error {
	ids, err := idx.Load()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return idx.client.Append(indexKey, "", id)
}

// Remove deletes id from the PinIndex, rewriting the whole document
// (the store's delete op targets array elements by predicate, but a
// bare string array has no field to predicate on, so we filter and
// Set instead).
func (idx *Index) Remove(id string) error {
	ids, err := idx.Load()
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return idx.client.Set(indexKey, "", kept)
}

// Has reports whether id is present in the PinIndex.
func (idx *Index) Has(id string) (bool, error) {
	ids, err := idx.Load()
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

// Reconcile syncs the PinIndex with the actual pin directories found
// on disk (onDisk), per spec.md §4.7: the index MUST be consistent
// with the directory tree at process start. onDisk is authoritative;
// indexed ids with no directory on disk are dropped. Returns the
// reconciled id set and the stale ids that were dropped, so callers
// can log them.
func (idx *Index) Reconcile(onDisk []string) (merged []string, stale []string, err error) {
	indexed, err := idx.Load()
	if err != nil {
		return nil, nil, err
	}

	onDiskSet := make(map[string]bool, len(onDisk))
	for _, id := range onDisk {
		onDiskSet[id] = true
	}
	for _, id := range indexed {
		if !onDiskSet[id] {
			stale = append(stale, id)
		}
	}

	merged = append(merged, onDisk...)
	if err := idx.client.Set(indexKey, "", merged); err != nil {
		return nil, nil, err
	}
	return merged, stale, nil
}
