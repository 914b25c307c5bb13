package wresult

import "go.mongodb.org/mongo-driver/bson"

func rawToD(raw bson.Raw) (bson.D, error) {
	var d bson.D
	if len(raw) == 0 {
		return d, nil
	}
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func fieldValue(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func fieldValueOK(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func fieldInt32(d bson.D, key string, def int32) int32 {
	v, ok := fieldValueOK(d, key)
	if !ok {
		return def
	}
	return toInt32(v)
}

func fieldInt32OK(d bson.D, key string) (int32, bool) {
	v, ok := fieldValueOK(d, key)
	if !ok {
		return 0, false
	}
	return toInt32(v), true
}

func fieldString(d bson.D, key string) (string, bool) {
	v, ok := fieldValueOK(d, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func fieldBoolOK(d bson.D, key string) (bool, bool) {
	v, ok := fieldValueOK(d, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func fieldArray(d bson.D, key string) ([]bson.Raw, bool) {
	v, ok := fieldValueOK(d, key)
	if !ok {
		return nil, false
	}
	switch arr := v.(type) {
	case bson.A:
		out := make([]bson.Raw, 0, len(arr))
		for _, item := range arr {
			raw, err := bson.Marshal(item)
			if err != nil {
				continue
			}
			out = append(out, bson.Raw(raw))
		}
		return out, true
	case []interface{}:
		out := make([]bson.Raw, 0, len(arr))
		for _, item := range arr {
			raw, err := bson.Marshal(item)
			if err != nil {
				continue
			}
			out = append(out, bson.Raw(raw))
		}
		return out, true
	default:
		return nil, false
	}
}

func fieldDocument(d bson.D, key string) (bson.D, bool) {
	v, ok := fieldValueOK(d, key)
	if !ok {
		return nil, false
	}
	switch doc := v.(type) {
	case bson.D:
		return doc, len(doc) > 0
	case bson.M:
		out := make(bson.D, 0, len(doc))
		for k, val := range doc {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

func toInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int64:
		return int32(n)
	case int:
		return int32(n)
	case float64:
		return int32(n)
	default:
		return 0
	}
}
