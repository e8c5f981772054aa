package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/steemit/commentd/pkg/config"
)

func TestScalyrEncoder(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(NewScalyrEncoder(zapcore.EncoderConfig{}), zapcore.AddSync(&buf), zapcore.InfoLevel)
	logger := zap.New(core).With(zap.String("component", "guard"))

	logger.Info("test message",
		zap.String("key", "value"),
		zap.Bool("allowed", false),
		zap.Duration("retry_after", 1500*time.Millisecond),
	)

	var logObj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logObj); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}

	if logObj["message"] != "test message" {
		t.Errorf("Expected message 'test message', got: %v", logObj["message"])
	}
	if logObj["key"] != "value" {
		t.Errorf("Expected field 'key'='value', got: %v", logObj["key"])
	}
	if logObj["component"] != "guard" {
		t.Errorf("Expected context field 'component'='guard', got: %v", logObj["component"])
	}
	if logObj["allowed"] != false {
		t.Errorf("Expected bool field 'allowed'=false, got: %v", logObj["allowed"])
	}
	if logObj["retry_after"] != "1.5s" {
		t.Errorf("Expected duration rendered as string, got: %v", logObj["retry_after"])
	}
	if _, ok := logObj["timestamp"]; !ok {
		t.Error("Expected 'timestamp' field in log output")
	}
}

func TestInitLogger(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	for _, cfg := range []config.LoggingConfig{
		{Level: "DEBUG", Format: "text"},
		{Level: "warning", Format: "json"},
		{Level: "INFO", Format: "json", ScalyrFormat: true},
	} {
		if err := InitLogger(&cfg); err != nil {
			t.Fatalf("InitLogger(%+v) failed: %v", cfg, err)
		}
		if Logger == nil {
			t.Fatalf("InitLogger(%+v) left Logger nil", cfg)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
