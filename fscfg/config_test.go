package fscfg

import (
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate, got: %v", err)
	}
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	c := Default()
	c.Pack.Policy = "bogus"
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an unknown pack.policy")
	}
}

func TestValidateRejectsZeroMaxResourceSize(t *testing.T) {
	c := Default()
	c.Pack.MaxResourceSize = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for pack.max_resource_size == 0")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	c := Default()
	c.Log.Level = "debug"
	c.GC.KeepResources = true
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Log.Level != "debug" || !loaded.GC.KeepResources {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
}
