package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("IMGCRAWL_DATA_DIR", t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.WatchFolder != "/LSST" {
		t.Errorf("WatchFolder = %q, want /LSST", c.WatchFolder)
	}
	if c.WatchSite != "NCSA" {
		t.Errorf("WatchSite = %q, want NCSA", c.WatchSite)
	}
	if c.DatasetVersion != "current" {
		t.Errorf("DatasetVersion = %q, want current", c.DatasetVersion)
	}
	if c.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", c.PollInterval)
	}
	if c.MaxResults != 1000 {
		t.Errorf("MaxResults = %d, want 1000", c.MaxResults)
	}
	if c.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %s, want 30s", c.RequestTimeout)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", c.LogLevel)
	}
	if c.DryRun {
		t.Error("DryRun should default to false")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("IMGCRAWL_DATA_DIR", t.TempDir())
	t.Setenv("IMGCRAWL_CATALOG_URL", "http://catalog.example.org:8180/r/")
	t.Setenv("IMGCRAWL_WATCH_SITE", "SLAC")
	t.Setenv("IMGCRAWL_POLL_INTERVAL", "30s")
	t.Setenv("IMGCRAWL_MAX_RESULTS", "250")
	t.Setenv("IMGCRAWL_DRY_RUN", "yes")
	t.Setenv("IMGCRAWL_NOTIFY_URLS", "discord://token@channel, slack://hook")
	t.Setenv("IMGCRAWL_LOG_LEVEL", "DEBUG")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.CatalogURL != "http://catalog.example.org:8180/r" {
		t.Errorf("CatalogURL = %q, trailing slash should be trimmed", c.CatalogURL)
	}
	if c.WatchSite != "SLAC" {
		t.Errorf("WatchSite = %q, want SLAC", c.WatchSite)
	}
	if c.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", c.PollInterval)
	}
	if c.MaxResults != 250 {
		t.Errorf("MaxResults = %d, want 250", c.MaxResults)
	}
	if !c.DryRun {
		t.Error("DryRun should be true for 'yes'")
	}
	if len(c.NotifyURLs) != 2 || c.NotifyURLs[0] != "discord://token@channel" || c.NotifyURLs[1] != "slack://hook" {
		t.Errorf("NotifyURLs = %v", c.NotifyURLs)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (lowercased)", c.LogLevel)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("IMGCRAWL_DATA_DIR", t.TempDir())
	t.Setenv("IMGCRAWL_POLL_INTERVAL", "not-a-duration")
	t.Setenv("IMGCRAWL_MAX_RESULTS", "many")
	t.Setenv("IMGCRAWL_LOG_LEVEL", "loud")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want default 5s", c.PollInterval)
	}
	if c.MaxResults != 1000 {
		t.Errorf("MaxResults = %d, want default 1000", c.MaxResults)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", c.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	SetForTesting(NewTestConfig())
	if err := Validate(); err != nil {
		t.Errorf("Validate() on test config: %v", err)
	}

	c := NewTestConfig()
	c.CatalogURL = ""
	SetForTesting(c)
	if err := Validate(); err == nil {
		t.Error("Validate() should fail without a catalog URL")
	}

	c = NewTestConfig()
	c.PollInterval = 0
	SetForTesting(c)
	if err := Validate(); err == nil {
		t.Error("Validate() should fail with a zero poll interval")
	}

	c = NewTestConfig()
	c.MaxResults = -5
	SetForTesting(c)
	if err := Validate(); err == nil {
		t.Error("Validate() should fail with a negative batch bound")
	}
}

func TestApplyFlags(t *testing.T) {
	SetForTesting(NewTestConfig())

	catalogURL := "http://other.example.org/r/"
	site := "IN2P3"
	interval := 10 * time.Second
	empty := ""
	zero := 0

	ApplyFlags(FlagOverrides{
		CatalogURL:   &catalogURL,
		WatchSite:    &site,
		PollInterval: &interval,
		WatchFolder:  &empty, // empty flags must not override
		MaxResults:   &zero,  // zero flags must not override
	})

	c := Get()
	if c.CatalogURL != "http://other.example.org/r" {
		t.Errorf("CatalogURL = %q", c.CatalogURL)
	}
	if c.WatchSite != "IN2P3" {
		t.Errorf("WatchSite = %q, want IN2P3", c.WatchSite)
	}
	if c.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %s, want 10s", c.PollInterval)
	}
	if c.WatchFolder != "/LSST" {
		t.Errorf("WatchFolder = %q, empty flag must not override", c.WatchFolder)
	}
	if c.MaxResults != 1000 {
		t.Errorf("MaxResults = %d, zero flag must not override", c.MaxResults)
	}
}
