package logging

import (
	"encoding/json"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var scalyrPool = buffer.NewPool()

// ScalyrEncoder writes one flat JSON object per entry, the layout Scalyr parses without a parser config.
// Context fields added through logger.With are collected in the embedded map encoder.
type ScalyrEncoder struct {
	*zapcore.MapObjectEncoder
}

// NewScalyrEncoder creates a new Scalyr-compatible encoder. The encoder config is accepted
// for symmetry with the zap constructors; key names are fixed.
func NewScalyrEncoder(_ zapcore.EncoderConfig) zapcore.Encoder {
	return &ScalyrEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

// Clone creates a copy of the encoder
func (e *ScalyrEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return &ScalyrEncoder{MapObjectEncoder: clone}
}

// EncodeEntry encodes a log entry in Scalyr-compatible format
func (e *ScalyrEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	obj := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		obj.Fields[k] = v
	}
	for _, f := range fields {
		f.AddTo(obj)
	}

	for k, v := range obj.Fields {
		if d, ok := v.(time.Duration); ok {
			obj.Fields[k] = d.String()
		}
	}

	obj.Fields["timestamp"] = entry.Time.Format(time.RFC3339Nano)
	obj.Fields["level"] = entry.Level.String()
	obj.Fields["message"] = entry.Message
	if entry.LoggerName != "" {
		obj.Fields["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		obj.Fields["file"] = entry.Caller.File
		obj.Fields["line"] = entry.Caller.Line
		obj.Fields["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		obj.Fields["stack"] = entry.Stack
	}

	data, err := json.Marshal(obj.Fields)
	if err != nil {
		return nil, err
	}

	buf := scalyrPool.Get()
	buf.AppendBytes(data)
	buf.AppendByte('\n')
	return buf, nil
}
