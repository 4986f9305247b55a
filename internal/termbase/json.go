package termbase

import "encoding/json"

// contextsToJSON marshals example contexts for storage in the JSONB column.
// A marshal error on a []string is unreachable; it is swallowed into an
// empty array rather than threaded through every caller's error return.
func contextsToJSON(contexts []string) []byte {
	if contexts == nil {
		contexts = []string{}
	}
	b, err := json.Marshal(contexts)
	if err != nil {
		return []byte("[]")
	}
	return b
}

func contextsFromJSON(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
