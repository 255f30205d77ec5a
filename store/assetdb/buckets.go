package assetdb

import "encoding/binary"

// Bucket names for bbolt storage.
var (
	bucketAssets       = []byte("assets")         // 8-byte id -> Asset JSON
	bucketAssetsByName = []byte("assets_by_name") // name -> 8-byte id
)

// encodeID converts an asset ID to a fixed-width big-endian key so that
// cursor order matches ID order.
func encodeID(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id)) //nolint:gosec // ids are always positive
	return buf
}

// decodeID converts a big-endian key back to an asset ID.
func decodeID(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:8])) //nolint:gosec // ids are always positive
}
