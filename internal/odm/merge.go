package odm

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// mergeMaps folds src into dst and returns dst. Values in src win, nested
// maps merge recursively and nested arrays are concatenated, skipping
// elements dst already holds.
func mergeMaps(dst, src bson.M) bson.M {
	if dst == nil {
		dst = bson.M{}
	}
	for k, v := range src {
		old, ok := dst[k]
		if !ok {
			dst[k] = cloneValue(v)
			continue
		}
		dst[k] = mergeValue(old, v)
	}
	return dst
}

func mergeValue(old, v interface{}) interface{} {
	if om, ok := asMap(old); ok {
		if nm, ok := asMap(v); ok {
			return mergeMaps(cloneMap(om), nm)
		}
	}
	if oa, ok := asArray(old); ok {
		if na, ok := asArray(v); ok {
			out := append([]interface{}{}, oa...)
			for _, e := range na {
				if !containsValue(out, e) {
					out = append(out, cloneValue(e))
				}
			}
			return out
		}
	}
	return cloneValue(v)
}

func containsValue(list []interface{}, v interface{}) bool {
	for _, e := range list {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func asMap(v interface{}) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return bson.M(m), true
	case bson.D:
		return m.Map(), true
	}
	return nil, false
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case []interface{}:
		return a, true
	case bson.A:
		return []interface{}(a), true
	}
	return nil, false
}

func cloneMap(m bson.M) bson.M {
	if m == nil {
		return nil
	}
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		if _, isD := v.(bson.D); !isD {
			return cloneMap(m)
		}
	}
	if a, ok := asArray(v); ok {
		out := make([]interface{}, len(a))
		for i, e := range a {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// mergeSort appends src keys to dst, replacing the direction of keys already
// present without moving them.
func mergeSort(dst, src bson.D) bson.D {
	out := append(bson.D{}, dst...)
	for _, e := range src {
		replaced := false
		for i := range out {
			if out[i].Key == e.Key {
				out[i].Value = e.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}
