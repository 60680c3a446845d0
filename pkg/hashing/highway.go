package hashing

import (
	"encoding/hex"

	"github.com/minio/highwayhash"
)

// key is fixed so hashes stay stable across processes and releases.
var key = []byte("oncare-rag-content-hash-key-0001")

// Sum returns the hex HighwayHash-128 of data.
func Sum(data []byte) string {
	sum := highwayhash.Sum128(data, key)
	return hex.EncodeToString(sum[:])
}

func SumString(s string) string {
	return Sum([]byte(s))
}
