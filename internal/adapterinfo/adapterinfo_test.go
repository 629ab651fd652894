package adapterinfo

import "testing"

func TestMetadata(t *testing.T) {
	if Version() == "" {
		t.Fatal("Version() returned empty string")
	}
	if Version() != Info.Version {
		t.Fatalf("Version() mismatch: got %q want %q", Version(), Info.Version)
	}
	if Info.Slug == "" || Info.GeneratorID == "" {
		t.Fatalf("unexpected Info metadata: %+v", Info)
	}
}

func TestResultMetadata(t *testing.T) {
	meta := ResultMetadata("en-US")
	if meta["generator"] != Info.GeneratorID {
		t.Fatalf("unexpected generator: %q", meta["generator"])
	}
	if meta["language"] != "en-US" {
		t.Fatalf("unexpected language: %q", meta["language"])
	}
	if meta["version"] != Info.Version {
		t.Fatalf("unexpected version: %q", meta["version"])
	}
}
