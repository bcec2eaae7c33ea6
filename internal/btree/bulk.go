package btree

import "github.com/sphildreth/decentdb-sub007/internal/pageformat"

// BuildFromSorted constructs a new tree bottom-up from entries already
// sorted ascending by key, used for secondary-index builds and trigram
// postings rebuilds where inserting one key at a time through Insert
// would re-split pages repeatedly for no benefit. Leaves are packed
// greedily to the reserved trailer, then a level of internal pages is
// built over the leaf chain, repeating until one root remains.
func BuildFromSorted(store pageStore, entries []struct {
	Key   Key
	Value []byte
}) (pageformat.PageID, error) {
	if len(entries) == 0 {
		id, err := store.AllocatePage()
		if err != nil {
			return 0, err
		}
		lp := &leafPage{id: id}
		if err := store.WritePage(id, lp.encode(int(store.PageSize()))); err != nil {
			return 0, err
		}
		return id, nil
	}

	pageSize := int(store.PageSize())

	var leafIDs []pageformat.PageID
	var firstKeys []Key

	var cur *leafPage
	flush := func(next pageformat.PageID) error {
		if cur == nil {
			return nil
		}
		cur.next = next
		return store.WritePage(cur.id, cur.encode(pageSize))
	}

	for _, ent := range entries {
		leafEnt, err := makeLeafEntry(store, ent.Key, ent.Value)
		if err != nil {
			return 0, err
		}

		if cur == nil {
			id, err := store.AllocatePage()
			if err != nil {
				return 0, err
			}
			cur = &leafPage{id: id}
			leafIDs = append(leafIDs, id)
			firstKeys = append(firstKeys, ent.Key)
		}

		trial := append(append([]leafEntry{}, cur.entries...), leafEnt)
		tmp := &leafPage{id: cur.id, entries: trial}
		if tmp.encodedSize()+reservedTrailer > pageSize && len(cur.entries) > 0 {
			id, err := store.AllocatePage()
			if err != nil {
				return 0, err
			}
			if err := flush(id); err != nil {
				return 0, err
			}
			cur = &leafPage{id: id, entries: []leafEntry{leafEnt}}
			leafIDs = append(leafIDs, id)
			firstKeys = append(firstKeys, ent.Key)
			continue
		}
		cur.entries = trial
	}
	if err := flush(0); err != nil {
		return 0, err
	}

	return buildInternalLevels(store, leafIDs, firstKeys)
}

func makeLeafEntry(store pageStore, key Key, value []byte) (leafEntry, error) {
	if len(value) > int(store.PageSize())/inlineFraction {
		head, err := writeOverflow(store, value)
		if err != nil {
			return leafEntry{}, err
		}
		return leafEntry{key: key, inline: false, ovHead: head}, nil
	}
	payload := make([]byte, len(value))
	copy(payload, value)
	return leafEntry{key: key, inline: true, payload: payload}, nil
}

// buildInternalLevels repeatedly groups a level of child page ids (with
// their minimum keys) into parent internal pages until a single root
// page id remains. Within a parent, entries[i] = (minKey of children[i+1],
// children[i]), and rightmost = the batch's last child — i.e. each
// separator is the key that divides child i from child i+1.
func buildInternalLevels(store pageStore, childIDs []pageformat.PageID, minKeys []Key) (pageformat.PageID, error) {
	pageSize := int(store.PageSize())
	if len(childIDs) == 1 {
		return childIDs[0], nil
	}

	var parentIDs []pageformat.PageID
	var parentMinKeys []Key

	i := 0
	for i < len(childIDs) {
		id, err := store.AllocatePage()
		if err != nil {
			return 0, err
		}
		batchStart := i
		ip := &internalPage{id: id, rightmost: childIDs[i]}
		i++

		for i < len(childIDs) {
			candidate := append(append([]internalEntry{}, ip.entries...), internalEntry{key: minKeys[i], child: ip.rightmost})
			tmp := &internalPage{id: id, entries: candidate, rightmost: childIDs[i]}
			if tmp.encodedSize()+reservedTrailer > pageSize {
				break
			}
			ip.entries = candidate
			ip.rightmost = childIDs[i]
			i++
		}

		if err := store.WritePage(id, ip.encode(pageSize)); err != nil {
			return 0, err
		}
		parentIDs = append(parentIDs, id)
		parentMinKeys = append(parentMinKeys, minKeys[batchStart])
	}

	return buildInternalLevels(store, parentIDs, parentMinKeys)
}
