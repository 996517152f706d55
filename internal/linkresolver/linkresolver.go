// Package linkresolver turns an address's raw pre-existing-link field into
// concrete (address, parcel) pairs, grounded on
// original_source/src/structures.rs / matcher.rs's build_preexisting_map.
package linkresolver

import "strings"

// Resolve splits an address's ExistingLink field on ';', '|', and ',',
// trims whitespace, drops empty tokens, and keeps only ids present in
// parcelIDs. It returns the surviving parcel ids in input order (nil when
// none survive); callers turn each into one MatchPreExisting row.
func Resolve(existingLink string, parcelIDs map[string]struct{}) []string {
	if existingLink == "" {
		return nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(existingLink, func(r rune) bool {
		return r == ';' || r == '|' || r == ','
	}) {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, ok := parcelIDs[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
