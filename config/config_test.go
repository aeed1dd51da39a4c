package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `market:
  zone: "FI"
  timezone: "Europe/Helsinki"
  entsoe:
    token: "tok"
    cache_dir: "/tmp/prices"
charge:
  energy_kwh: 22
  charger_power_kw: 11
  earliest_start: "18:00"
  deadline: "07:00"
  min_contiguous_block_minutes: 60
  max_sessions: 2
charger:
  vendor: "zaptec"
  command_retries: 1
  zaptec:
    api_key: "key"
    charger_id: "ZAP123"
smtp:
  host: "smtp.example.com"
  from: "bot@example.com"
  to:
    - "owner@example.com"
metrics:
  pushgateway_url: "http://localhost:9091"
  push_job: "spotcharge"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"zone", cfg.Market.Zone, "FI"},
		{"timezone", cfg.Market.Timezone, "Europe/Helsinki"},
		{"entsoe.token", cfg.Market.Entsoe.Token, "tok"},
		{"entsoe.cache_dir", cfg.Market.Entsoe.CacheDir, "/tmp/prices"},
		{"entsoe.api_url default", cfg.Market.Entsoe.APIURL, "https://web-api.tp.entsoe.eu/api"},
		{"energy_kwh", cfg.Charge.EnergyKWh, 22.0},
		{"charger_power_kw", cfg.Charge.ChargerPowerKW, 11.0},
		{"earliest_start", cfg.Charge.EarliestStart, "18:00"},
		{"deadline", cfg.Charge.Deadline, "07:00"},
		{"min_block", cfg.Charge.MinContiguousBlockMinutes, 60},
		{"max_sessions", cfg.Charge.MaxSessions, 2},
		{"vendor", cfg.Charger.Vendor, "zaptec"},
		{"command_retries", cfg.Charger.CommandRetries, 1},
		{"zaptec.charger_id", cfg.Charger.Zaptec.ChargerID, "ZAP123"},
		{"smtp.host", cfg.SMTP.Host, "smtp.example.com"},
		{"smtp.port default", cfg.SMTP.Port, 587},
		{"metrics.push_job", cfg.Metrics.PushJob, "spotcharge"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SC_market__zone", "SE3")
	t.Setenv("SC_charger__vendor", "none")
	path := writeConfig(t, "config.yaml", `market:
  zone: "FI"
  entsoe:
    token: "tok"
charge:
  session_duration_minutes: 120
charger:
  vendor: "zaptec"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Market.Zone != "SE3" {
		t.Errorf("zone override not applied: %s", cfg.Market.Zone)
	}
	if cfg.Charger.Vendor != "none" {
		t.Errorf("vendor override not applied: %s", cfg.Charger.Vendor)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"market":{"zone":"FI","entsoe":{"token":"tok"}},"charge":{"session_duration_minutes":60}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Charge.SessionDurationMinutes != 60 {
		t.Errorf("session duration mismatch: %d", cfg.Charge.SessionDurationMinutes)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing zone", "market:\n  entsoe:\n    token: \"tok\"\ncharge:\n  session_duration_minutes: 60\n"},
		{"missing need", "market:\n  zone: \"FI\"\n  entsoe:\n    token: \"tok\"\n"},
		{"energy without power", "market:\n  zone: \"FI\"\n  entsoe:\n    token: \"tok\"\ncharge:\n  energy_kwh: 22\n"},
		{"bad clock", "market:\n  zone: \"FI\"\n  entsoe:\n    token: \"tok\"\ncharge:\n  session_duration_minutes: 60\n  deadline: \"25:99\"\n"},
		{"bad timezone", "market:\n  zone: \"FI\"\n  timezone: \"Mars/Olympus\"\n  entsoe:\n    token: \"tok\"\ncharge:\n  session_duration_minutes: 60\n"},
		{"unknown vendor", "market:\n  zone: \"FI\"\n  entsoe:\n    token: \"tok\"\ncharge:\n  session_duration_minutes: 60\ncharger:\n  vendor: \"tesla\"\n"},
		{"zaptec without credentials", "market:\n  zone: \"FI\"\n  entsoe:\n    token: \"tok\"\ncharge:\n  session_duration_minutes: 60\ncharger:\n  vendor: \"zaptec\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.data)
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "config.toml", "market = 1")
	if _, err := Load(path); err == nil {
		t.Fatal("expected format error")
	}
}

func TestMarketDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	t.Run("explicit date", func(t *testing.T) {
		c := MarketConfig{Date: "2025-06-15"}
		day, err := c.Day(time.Now(), loc)
		if err != nil {
			t.Fatalf("day: %v", err)
		}
		want := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)
		if !day.Equal(want) {
			t.Fatalf("day = %v, want %v", day, want)
		}
	})

	t.Run("default next day", func(t *testing.T) {
		now := time.Date(2025, 6, 14, 19, 30, 0, 0, loc)
		day, err := MarketConfig{}.Day(now, loc)
		if err != nil {
			t.Fatalf("day: %v", err)
		}
		want := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)
		if !day.Equal(want) {
			t.Fatalf("day = %v, want %v", day, want)
		}
	})
}

func TestChargeConstraints(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	day := time.Date(2025, 6, 15, 0, 0, 0, 0, loc)

	c := ChargeConfig{
		EnergyKWh:                 22,
		ChargerPowerKW:            11,
		EarliestStart:             "08:30",
		Deadline:                  "24:00",
		MinContiguousBlockMinutes: 90,
		MaxSessions:               3,
	}
	got, err := c.Constraints(day)
	if err != nil {
		t.Fatalf("constraints: %v", err)
	}
	if !got.EarliestStart.Equal(time.Date(2025, 6, 15, 8, 30, 0, 0, loc)) {
		t.Errorf("earliest start = %v", got.EarliestStart)
	}
	if !got.Deadline.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, loc)) {
		t.Errorf("deadline = %v", got.Deadline)
	}
	if got.MinContiguousBlock != 90*time.Minute {
		t.Errorf("min block = %v", got.MinContiguousBlock)
	}
	req, err := got.RequiredDuration()
	if err != nil {
		t.Fatalf("required duration: %v", err)
	}
	if req != 2*time.Hour {
		t.Errorf("required = %v", req)
	}

	empty, err := ChargeConfig{SessionDurationMinutes: 60}.Constraints(day)
	if err != nil {
		t.Fatalf("constraints: %v", err)
	}
	if !empty.EarliestStart.IsZero() || !empty.Deadline.IsZero() {
		t.Errorf("window edges should stay zero: %+v", empty)
	}
}
