package kb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ContentChecksum returns the sha256 hex digest used to key the per-entry
// embedding cache.
func ContentChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EncodeVector renders an embedding as a JSON array for storage.
func EncodeVector(v []float32) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(data), nil
}

// DecodeVector parses a stored JSON embedding.
func DecodeVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return v, nil
}

// l2Distance computes squared Euclidean distance. The square root is
// omitted: it does not change the nearest-neighbor ordering.
func l2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
