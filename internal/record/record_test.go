package record

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// memStore is a tiny in-memory btree.PageStore double, mirroring the one
// in internal/btree's own tests.
type memStore struct {
	pages    map[pageformat.PageID][]byte
	nextID   pageformat.PageID
	pageSize uint32
}

func newMemStore(pageSize uint32) *memStore {
	return &memStore{pages: make(map[pageformat.PageID][]byte), nextID: 1, pageSize: pageSize}
}

func (s *memStore) ReadPage(id pageformat.PageID) ([]byte, error) {
	buf, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %d not found", id)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (s *memStore) WritePage(id pageformat.PageID, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.pages[id] = cp
	return nil
}

func (s *memStore) AllocatePage() (pageformat.PageID, error) {
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *memStore) FreePage(id pageformat.PageID) error {
	delete(s.pages, id)
	return nil
}

func (s *memStore) PageSize() uint32 { return s.pageSize }

func TestRoundTripAllSimpleKinds(t *testing.T) {
	store := newMemStore(4096)
	id := uuid.New()
	values := []Value{
		NewNull(),
		NewInt64(-12345),
		NewFloat64(3.25),
		NewBool(true),
		NewBool(false),
		NewText("hello"),
		NewBlob([]byte{1, 2, 3, 4}),
		NewDecimal(12345, 2),
		NewUUID(id),
	}

	data, err := EncodeRow(store, values)
	require.NoError(t, err)

	decoded, err := DecodeRow(store, data)
	require.NoError(t, err)
	require.Len(t, decoded, len(values))

	require.Equal(t, Null, decoded[0].Kind)
	require.Equal(t, int64(-12345), decoded[1].I64)
	require.Equal(t, 3.25, decoded[2].F64)
	require.Equal(t, true, decoded[3].Bool)
	require.Equal(t, false, decoded[4].Bool)
	require.Equal(t, "hello", decoded[5].Text)
	require.Equal(t, []byte{1, 2, 3, 4}, decoded[6].Blob)
	require.Equal(t, int64(12345), decoded[7].DecimalUnscaled)
	require.Equal(t, uint8(2), decoded[7].DecimalScale)
	require.Equal(t, id, decoded[8].UUID)
}

func TestLargeIncompressibleTextUsesOverflow(t *testing.T) {
	store := newMemStore(512)
	// Pseudo-random bytes (top byte of a 32-bit LCG) that zlib won't
	// meaningfully shrink.
	var sb strings.Builder
	x := uint32(1)
	for i := 0; i < 2000; i++ {
		x = x*1664525 + 1013904223
		sb.WriteByte(byte(x >> 24))
	}
	text := sb.String()

	data, err := EncodeRow(store, []Value{NewText(text)})
	require.NoError(t, err)

	decoded, err := DecodeRow(store, data)
	require.NoError(t, err)
	require.Equal(t, text, decoded[0].Text)
	// More than one page must have been allocated for the overflow chain.
	require.Greater(t, len(store.pages), 1)
}

func TestHighlyCompressibleTextStoredCompressedInline(t *testing.T) {
	store := newMemStore(4096)
	text := strings.Repeat("a", 1000)

	data, err := EncodeRow(store, []Value{NewText(text)})
	require.NoError(t, err)
	require.Less(t, len(data), len(text))

	decoded, err := DecodeRow(store, data)
	require.NoError(t, err)
	require.Equal(t, text, decoded[0].Text)
}

func TestShortTextNeverCompressed(t *testing.T) {
	store := newMemStore(4096)
	data, err := EncodeRow(store, []Value{NewText("hi")})
	require.NoError(t, err)

	decoded, err := DecodeRow(store, data)
	require.NoError(t, err)
	require.Equal(t, "hi", decoded[0].Text)
}
