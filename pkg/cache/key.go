package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Key derives the storage key for a card, parameter set and tenant.
// Parameter maps that are equal, regardless of insertion order, produce
// the same key. A nil map and an empty map are the same.
func Key(cardID int, params map[string]any, tenant string) string {
	return fmt.Sprintf("card:%d:tenant:%s:params:%s", cardID, NormalizeTenant(tenant), Fingerprint(params))
}

// parseKey recovers the card id and tenant from a key built by Key.
func parseKey(key string) (int, string, bool) {
	rest, ok := strings.CutPrefix(key, "card:")
	if !ok {
		return 0, "", false
	}
	id, rest, ok := strings.Cut(rest, ":tenant:")
	if !ok {
		return 0, "", false
	}
	end := strings.LastIndex(rest, ":params:")
	if end < 0 {
		return 0, "", false
	}
	cardID, err := strconv.Atoi(id)
	if err != nil {
		return 0, "", false
	}
	return cardID, rest[:end], true
}

// NormalizeTenant maps the empty tenant to DefaultTenant.
func NormalizeTenant(tenant string) string {
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}

// Fingerprint hashes the canonical encoding of params.
func Fingerprint(params map[string]any) string {
	sum := sha256.Sum256(canonical(params))
	return hex.EncodeToString(sum[:])
}

// canonical encodes params with keys sorted at every depth.
func canonical(params map[string]any) []byte {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err == nil {
		return data
	}

	// Values JSON cannot encode fall back to their printed form.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%q=%v;", k, params[k])
	}
	return []byte(b.String())
}
