package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/spacesedan/sentiment-aura/internal/models"
)

// Fingerprint identifies a cache entry for normalized text under a provider set.
// Provider order and duplicates do not matter.
func Fingerprint(text string, providers []models.ProviderID) string {
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, string(p))
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
