package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseArguments decodes a model supplied tool argument string into a map.
// Empty input yields an empty map. Malformed JSON (trailing commas, single
// quotes, truncated objects) is repaired once before giving up. The second
// return value reports whether a repair was needed.
func ParseArguments(raw string) (map[string]any, bool, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, false, nil
	}

	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, false, nil
	}

	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false, fmt.Errorf("invalid tool arguments: %w", err)
	}

	args = map[string]any{}
	if err := json.Unmarshal([]byte(fixed), &args); err != nil {
		return nil, true, fmt.Errorf("invalid tool arguments after repair: %w", err)
	}

	return args, true, nil
}
