package normalize

// Shape applies shape normalization to a parsed value:
//
//   - an object holding "items" or "result" is kept, plus a declaredKey alias
//     when that value is an array and the key is free;
//   - a bare array becomes {"items": arr};
//   - an object with exactly one array-valued property also exposes that
//     array under "items" and declaredKey;
//   - anything else is returned unchanged.
//
// Aliases share the same slice.
func Shape(v any, declaredKey string) any {
	switch val := v.(type) {
	case []any:
		out := map[string]any{"items": val}
		addAlias(out, declaredKey, val)
		return out

	case map[string]any:
		if hasKey(val, "items") || hasKey(val, "result") {
			arr, ok := PrimaryArray(val)
			if !ok || declaredKey == "" || hasKey(val, declaredKey) {
				return val
			}
			out := copyTop(val)
			out[declaredKey] = arr
			return out
		}

		key, arr, ok := singleArrayProperty(val)
		if !ok {
			return val
		}
		out := copyTop(val)
		out[key] = arr
		out["items"] = arr
		addAlias(out, declaredKey, arr)
		return out

	default:
		return v
	}
}

// PrimaryArray returns the array a shaped value exposes under "items" (or
// "result"), if any.
func PrimaryArray(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case map[string]any:
		for _, key := range []string{"items", "result"} {
			if arr, ok := val[key].([]any); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

func singleArrayProperty(m map[string]any) (string, []any, bool) {
	var (
		found string
		arr   []any
		count int
	)
	for k, v := range m {
		if a, ok := v.([]any); ok {
			found, arr = k, a
			count++
		}
	}
	if count != 1 {
		return "", nil, false
	}
	return found, arr, true
}

func addAlias(out map[string]any, key string, arr []any) {
	if key == "" {
		return
	}
	if _, exists := out[key]; exists {
		return
	}
	out[key] = arr
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func copyTop(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
