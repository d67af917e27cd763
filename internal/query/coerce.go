package query

// CoerceScalar converts a query-string value to its native type: "true"
// and "false" become booleans and "null" becomes nil. Everything else is
// returned unchanged. Numeric strings stay strings; numeric conversion
// happens against the field type in the store.
func CoerceScalar(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	return s
}

// coerceList coerces every element of a list.
func coerceList(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = CoerceScalar(item)
	}
	return out
}
