// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lxkalv/nrf24mtp/internal/radio"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]string{"-mode", "TX"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != "TX" {
		t.Errorf("expected mode TX, got %q", cfg.Mode)
	}
	if cfg.CEPin != 22 {
		t.Errorf("expected default ce-pin 22, got %d", cfg.CEPin)
	}
	if cfg.Channel != 76 {
		t.Errorf("expected default channel 76, got %d", cfg.Channel)
	}
	if cfg.DataRate != "1MBPS" {
		t.Errorf("expected default data-rate 1MBPS, got %q", cfg.DataRate)
	}
	if cfg.PALevel != "MIN" {
		t.Errorf("expected default pa-level MIN, got %q", cfg.PALevel)
	}
	if cfg.CRCBytes != 2 {
		t.Errorf("expected default crc-bytes 2, got %d", cfg.CRCBytes)
	}
	if cfg.RetransmissionTries != 15 {
		t.Errorf("expected default retransmission-tries 15, got %d", cfg.RetransmissionTries)
	}
	if cfg.RetransmissionDelay != 2 {
		t.Errorf("expected default retransmission-delay 2, got %d", cfg.RetransmissionDelay)
	}
}

func TestParse_ModeLowercaseNormalized(t *testing.T) {
	cfg, err := Parse([]string{"-mode", "rx"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != "RX" {
		t.Errorf("expected normalized mode RX, got %q", cfg.Mode)
	}
}

func TestParse_MissingModeIsError(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for missing -mode")
	}
}

func TestParse_InvalidModeIsError(t *testing.T) {
	if _, err := Parse([]string{"-mode", "BOTH"}); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestParse_OutOfRangeFlags(t *testing.T) {
	tests := [][]string{
		{"-mode", "TX", "-ce-pin", "32"},
		{"-mode", "TX", "-channel", "126"},
		{"-mode", "TX", "-crc-bytes", "3"},
		{"-mode", "TX", "-retransmission-tries", "16"},
		{"-mode", "TX", "-retransmission-delay", "16"},
		{"-mode", "TX", "-loss-rate", "1.5"},
		{"-mode", "TX", "-data-rate", "10MBPS"},
		{"-mode", "TX", "-pa-level", "ULTRA"},
	}
	for _, args := range tests {
		if _, err := Parse(args); err == nil {
			t.Errorf("args %v: expected validation error, got none", args)
		}
	}
}

func TestParse_YAMLFileSuppliesDefaultsFlagsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	yamlContent := "mode: TX\nchannel: 40\ndata_rate: 2MBPS\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Parse([]string{"-config", path, "-channel", "50"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != "TX" {
		t.Errorf("expected mode TX from YAML, got %q", cfg.Mode)
	}
	if cfg.DataRate != "2MBPS" {
		t.Errorf("expected data-rate 2MBPS from YAML, got %q", cfg.DataRate)
	}
	if cfg.Channel != 50 {
		t.Errorf("expected channel 50 (flag overrides YAML 40), got %d", cfg.Channel)
	}
}

func TestParse_S3CredentialsFlags(t *testing.T) {
	cfg, err := Parse([]string{"-mode", "TX", "-s3-access-key-id", "AKIAEXAMPLE", "-s3-secret-access-key", "secret"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	creds := cfg.S3Credentials()
	if creds.AccessKeyID != "AKIAEXAMPLE" || creds.SecretAccessKey != "secret" {
		t.Errorf("expected credentials to carry the flag values, got %+v", creds)
	}
}

func TestParse_S3CredentialsMustBeSetTogether(t *testing.T) {
	tests := [][]string{
		{"-mode", "TX", "-s3-access-key-id", "AKIAEXAMPLE"},
		{"-mode", "TX", "-s3-secret-access-key", "secret"},
	}
	for _, args := range tests {
		if _, err := Parse(args); err == nil {
			t.Errorf("args %v: expected validation error for lone S3 credential flag", args)
		}
	}
}

func TestParse_ConfigFlagWithEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	if err := os.WriteFile(path, []byte("mode: RX\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Parse([]string{"-config=" + path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != "RX" {
		t.Errorf("expected mode RX from YAML via -config=, got %q", cfg.Mode)
	}
}

func TestRadioDataRate(t *testing.T) {
	tests := []struct {
		flag string
		want radio.DataRate
	}{
		{"250KBPS", radio.DataRate250kbps},
		{"1MBPS", radio.DataRate1mbps},
		{"2MBPS", radio.DataRate2mbps},
	}
	for _, tt := range tests {
		cfg := &Config{DataRate: tt.flag}
		got, err := cfg.RadioDataRate()
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.flag, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.flag, got, tt.want)
		}
	}
}

func TestRadioPALevel(t *testing.T) {
	tests := []struct {
		flag string
		want radio.PALevel
	}{
		{"MIN", radio.PALevelMin},
		{"LOW", radio.PALevelLow},
		{"HIGH", radio.PALevelHigh},
		{"MAX", radio.PALevelMax},
	}
	for _, tt := range tests {
		cfg := &Config{PALevel: tt.flag}
		got, err := cfg.RadioPALevel()
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.flag, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.flag, got, tt.want)
		}
	}
}

func TestRadioCRCLength(t *testing.T) {
	tests := []struct {
		bytes int
		want  radio.CRCLength
	}{
		{0, radio.CRCLengthDisabled},
		{1, radio.CRCLength8},
		{2, radio.CRCLength16},
	}
	for _, tt := range tests {
		cfg := &Config{CRCBytes: tt.bytes}
		if got := cfg.RadioCRCLength(); got != tt.want {
			t.Errorf("%d: got %v, want %v", tt.bytes, got, tt.want)
		}
	}
}
