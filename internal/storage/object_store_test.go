package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsProcessedKey(t *testing.T) {
	assert.True(t, IsProcessedKey("processed/batch.json"))
	assert.True(t, IsProcessedKey("processed/"))
	assert.False(t, IsProcessedKey("incoming/batch.json"))
	assert.False(t, IsProcessedKey("batch.json"))
	assert.False(t, IsProcessedKey(""))
	// Only the top-level prefix counts.
	assert.False(t, IsProcessedKey("incoming/processed/batch.json"))
}
