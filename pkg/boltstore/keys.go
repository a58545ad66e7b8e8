package boltstore

import (
	"encoding/binary"

	"github.com/emberwake-mud/emberwake/pkg/world"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta    = []byte("meta")
	bucketRooms   = []byte("rooms")
	bucketThings  = []byte("things")
	bucketPlayers = []byte("players")
	bucketNames   = []byte("playernames")
)

// Meta key constants.
var (
	keyFormat = []byte("format")
	keySeeded = []byte("seeded")
)

// formatVersion is bumped when the on-disk encoding changes shape.
const formatVersion = 1

// refToKey converts a Ref to an 8-byte big-endian key.
// We offset by a large constant so negative refs (Nothing=-1) sort correctly.
func refToKey(ref world.Ref) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to a Ref.
func keyToRef(b []byte) world.Ref {
	v := binary.BigEndian.Uint64(b)
	return world.Ref(int64(v) - 1<<32)
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
