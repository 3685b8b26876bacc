package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Cloud.Enabled() {
		t.Error("default config should not enable a cloud")
	}
}

func TestCloudConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CloudConfig
		wantErr bool
	}{
		{"empty defaults to none", CloudConfig{}, false},
		{"fs with path", CloudConfig{Backend: CloudFS, Path: "/mnt/share"}, false},
		{"fs without path", CloudConfig{Backend: CloudFS}, true},
		{"sqlite without path", CloudConfig{Backend: CloudSQLite}, true},
		{"http with url", CloudConfig{Backend: CloudHTTP, URL: "https://vault.example/api"}, false},
		{"http without url", CloudConfig{Backend: CloudHTTP}, true},
		{"http with bad url", CloudConfig{Backend: CloudHTTP, URL: "ftp://x"}, true},
		{"unknown backend", CloudConfig{Backend: "s3"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.cfg.Document == "" {
				t.Error("document should default")
			}
		})
	}
}

func TestAlarmsIntervalRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Alarms.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero alarm interval should fail validation")
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatal(err)
	}
	if time.Duration(d) != 90*time.Second {
		t.Errorf("duration = %v", time.Duration(d))
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected parse error")
	}
}
