package ports

// Logger is the structured logging port for the service layer. Keeping
// services off a concrete logging library keeps their tests free of
// log setup; the zap adapter in pkg/logging backs it in production.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
}

// Field is a key/value pair attached to a log line
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err attaches an error under the conventional "error" key
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
