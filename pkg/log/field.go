package log

// Field is a single structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Str builds a string Field.
func Str(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int builds an int Field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 builds an int64 Field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool builds a bool Field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err builds an "error" Field from an error value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any builds a Field from an arbitrary value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Component builds the conventional "component" Field used to tag a
// logger with the subsystem it belongs to (e.g. "stream", "http").
func Component(name string) Field {
	return Field{Key: ComponentKey, Value: name}
}
