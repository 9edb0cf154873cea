// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config resolves the nrf24mtp CLI flags, with an optional YAML
// file supplying defaults that flags override.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lxkalv/nrf24mtp/internal/radio"
	"github.com/lxkalv/nrf24mtp/internal/storage"
)

// Config is the fully resolved set of run parameters for one TX or RX run.
type Config struct {
	Mode                string      `yaml:"mode"`
	FilePathTX          string      `yaml:"file_path_tx"`
	FilePathRX          string      `yaml:"file_path_rx"`
	CEPin               int         `yaml:"ce_pin"`
	Channel             int         `yaml:"channel"`
	DataRate            string      `yaml:"data_rate"`
	PALevel             string      `yaml:"pa_level"`
	CRCBytes            int         `yaml:"crc_bytes"`
	RetransmissionTries int         `yaml:"retransmission_tries"`
	RetransmissionDelay int         `yaml:"retransmission_delay"`
	Autostart           bool        `yaml:"autostart"`
	PrintConfig         bool        `yaml:"print_config"`
	Sim                 bool        `yaml:"sim"`
	Schedule            string      `yaml:"schedule"`
	LossRate            float64     `yaml:"loss_rate"`
	Logging             LoggingInfo `yaml:"logging"`
	TransferLogDir      string      `yaml:"transfer_log_dir"`
	KeepOutputs         int         `yaml:"keep_outputs"`
	S3AccessKeyID       string      `yaml:"s3_access_key_id"`
	S3SecretAccessKey   string      `yaml:"s3_secret_access_key"`
}

// LoggingInfo mirrors the teacher's ambient logging knobs.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		CEPin:               22,
		Channel:             76,
		DataRate:            "1MBPS",
		PALevel:             "MIN",
		CRCBytes:            2,
		RetransmissionTries: 15,
		RetransmissionDelay: 2,
		Logging:             LoggingInfo{Level: "info", Format: "json"},
	}
}

// Parse builds a Config from an optional YAML file (loaded first, for
// defaults) and the given CLI arguments (parsed second, so flags always
// win). args should not include the program name (os.Args[1:]).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("nrf24mtp", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "config", "", "optional YAML file of flag defaults")

	cfg := defaults()
	if err := preloadConfigFile(&cfg, args); err != nil {
		return nil, err
	}

	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "endpoint role: TX or RX")
	fs.StringVar(&cfg.FilePathTX, "file-path-tx", cfg.FilePathTX, "source file or s3://bucket/key (TX only)")
	fs.StringVar(&cfg.FilePathRX, "file-path-rx", cfg.FilePathRX, "sink directory (RX only)")
	fs.IntVar(&cfg.CEPin, "ce-pin", cfg.CEPin, "GPIO pin for radio CE (0-31)")
	fs.IntVar(&cfg.Channel, "channel", cfg.Channel, "RF channel (0-125)")
	fs.StringVar(&cfg.DataRate, "data-rate", cfg.DataRate, "250KBPS|1MBPS|2MBPS")
	fs.StringVar(&cfg.PALevel, "pa-level", cfg.PALevel, "MIN|LOW|HIGH|MAX")
	fs.IntVar(&cfg.CRCBytes, "crc-bytes", cfg.CRCBytes, "hardware CRC width: 0, 1, or 2")
	fs.IntVar(&cfg.RetransmissionTries, "retransmission-tries", cfg.RetransmissionTries, "hardware auto-retry count (0-15)")
	fs.IntVar(&cfg.RetransmissionDelay, "retransmission-delay", cfg.RetransmissionDelay, "delay units of 250us (0-15)")
	fs.BoolVar(&cfg.Autostart, "autostart", cfg.Autostart, "skip interactive prompts")
	fs.BoolVar(&cfg.PrintConfig, "print-config", cfg.PrintConfig, "echo resolved config and exit")
	fs.BoolVar(&cfg.Sim, "sim", cfg.Sim, "use in-process radio.SimPair instead of a real device")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "PTX only: repeat the transfer on this cron schedule")
	fs.Float64Var(&cfg.LossRate, "loss-rate", cfg.LossRate, "-sim only: probability that each frame send attempt is dropped")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug|info|warn|error")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "json|text")
	fs.StringVar(&cfg.TransferLogDir, "transfer-log-dir", cfg.TransferLogDir, "optional: write a dedicated DEBUG-level log file per run under this directory")
	fs.IntVar(&cfg.KeepOutputs, "keep-outputs", cfg.KeepOutputs, "RX only: prune file-path-rx to this many most-recent outputs after each run (0 = keep all)")
	fs.StringVar(&cfg.S3AccessKeyID, "s3-access-key-id", cfg.S3AccessKeyID, "TX only, s3:// sources: static AWS access key, overriding the default credential chain")
	fs.StringVar(&cfg.S3SecretAccessKey, "s3-secret-access-key", cfg.S3SecretAccessKey, "TX only, s3:// sources: static AWS secret key, paired with -s3-access-key-id")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// preloadConfigFile scans args for -config without triggering flag.Parse's
// usual "unknown flag" errors on the rest of the flag set, then merges the
// YAML file's values into cfg before the real flag parse runs.
func preloadConfigFile(cfg *Config, args []string) error {
	var path string
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(a, "-config=") || strings.HasPrefix(a, "--config="):
			path = a[strings.Index(a, "=")+1:]
		}
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch strings.ToUpper(c.Mode) {
	case "TX", "RX":
		c.Mode = strings.ToUpper(c.Mode)
	default:
		return fmt.Errorf("mode must be TX or RX, got %q", c.Mode)
	}
	if c.CEPin < 0 || c.CEPin > 31 {
		return fmt.Errorf("ce-pin must be between 0 and 31, got %d", c.CEPin)
	}
	if c.Channel < 0 || c.Channel > 125 {
		return fmt.Errorf("channel must be between 0 and 125, got %d", c.Channel)
	}
	if _, err := c.RadioDataRate(); err != nil {
		return err
	}
	if _, err := c.RadioPALevel(); err != nil {
		return err
	}
	if c.CRCBytes < 0 || c.CRCBytes > 2 {
		return fmt.Errorf("crc-bytes must be 0, 1, or 2, got %d", c.CRCBytes)
	}
	if c.RetransmissionTries < 0 || c.RetransmissionTries > 15 {
		return fmt.Errorf("retransmission-tries must be between 0 and 15, got %d", c.RetransmissionTries)
	}
	if c.RetransmissionDelay < 0 || c.RetransmissionDelay > 15 {
		return fmt.Errorf("retransmission-delay must be between 0 and 15, got %d", c.RetransmissionDelay)
	}
	if c.LossRate < 0 || c.LossRate > 1 {
		return fmt.Errorf("loss-rate must be between 0 and 1, got %f", c.LossRate)
	}
	if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
		return fmt.Errorf("s3-access-key-id and s3-secret-access-key must be set together")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// RadioDataRate maps the -data-rate string to a radio.DataRate.
func (c *Config) RadioDataRate() (radio.DataRate, error) {
	switch strings.ToUpper(c.DataRate) {
	case "250KBPS":
		return radio.DataRate250kbps, nil
	case "1MBPS":
		return radio.DataRate1mbps, nil
	case "2MBPS":
		return radio.DataRate2mbps, nil
	default:
		return 0, fmt.Errorf("data-rate must be 250KBPS, 1MBPS, or 2MBPS, got %q", c.DataRate)
	}
}

// RadioPALevel maps the -pa-level string to a radio.PALevel.
func (c *Config) RadioPALevel() (radio.PALevel, error) {
	switch strings.ToUpper(c.PALevel) {
	case "MIN":
		return radio.PALevelMin, nil
	case "LOW":
		return radio.PALevelLow, nil
	case "HIGH":
		return radio.PALevelHigh, nil
	case "MAX":
		return radio.PALevelMax, nil
	default:
		return 0, fmt.Errorf("pa-level must be MIN, LOW, HIGH, or MAX, got %q", c.PALevel)
	}
}

// S3Credentials builds the storage package's credential override from
// -s3-access-key-id/-s3-secret-access-key. Zero value when either is unset,
// meaning storage falls back to the default AWS credential chain.
func (c *Config) S3Credentials() storage.S3Credentials {
	return storage.S3Credentials{AccessKeyID: c.S3AccessKeyID, SecretAccessKey: c.S3SecretAccessKey}
}

// RadioCRCLength maps the -crc-bytes integer to a radio.CRCLength.
func (c *Config) RadioCRCLength() radio.CRCLength {
	switch c.CRCBytes {
	case 0:
		return radio.CRCLengthDisabled
	case 1:
		return radio.CRCLength8
	default:
		return radio.CRCLength16
	}
}
