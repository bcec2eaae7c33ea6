package codec

import "hash/crc32"

// castagnoliTable is the CRC-32C polynomial table, used for the DB header
// checksum (spec.md §3.1) and composite-index keys (spec.md §3.1's "CRC-32C
// over concatenated per-column keys"). The teacher's WAL records use plain
// IEEE CRC-32 (hash/crc32.NewIEEE in btree/wal.go); the specification
// mandates Castagnoli for the header and catalog, so this package exposes
// Castagnoli only and callers never reach for crc32.NewIEEE.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC-32C checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// CRC32CMulti checksums several byte slices as if they were concatenated,
// used for the DB header's discontiguous checksum range (bytes 0-23 and
// 28-127, skipping the checksum field itself).
func CRC32CMulti(parts ...[]byte) uint32 {
	h := crc32.New(castagnoliTable)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum32()
}
