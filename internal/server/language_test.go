package server

import "testing"

func TestResolveLanguage_RequestWins(t *testing.T) {
	meta := map[string]string{"nupi.lang.bcp47": "pl-PL"}
	got := resolveLanguage("en-US", "de-DE", meta)
	if got != "de-DE" {
		t.Errorf("resolveLanguage(en-US, de-DE, bcp47=pl-PL): got %q, want %q", got, "de-DE")
	}
}

func TestResolveLanguage_MetadataHint(t *testing.T) {
	meta := map[string]string{"nupi.lang.bcp47": "pl-PL"}
	got := resolveLanguage("en-US", "", meta)
	if got != "pl-PL" {
		t.Errorf("resolveLanguage(en-US, \"\", bcp47=pl-PL): got %q, want %q", got, "pl-PL")
	}
}

func TestResolveLanguage_BlankRequestIgnored(t *testing.T) {
	got := resolveLanguage("en-US", "   ", nil)
	if got != "en-US" {
		t.Errorf("resolveLanguage(en-US, blank, nil): got %q, want %q", got, "en-US")
	}
}

func TestResolveLanguage_EmptyMetadataValue(t *testing.T) {
	meta := map[string]string{"nupi.lang.bcp47": ""}
	got := resolveLanguage("en-US", "", meta)
	if got != "en-US" {
		t.Errorf("resolveLanguage(en-US, \"\", bcp47=empty): got %q, want %q", got, "en-US")
	}
}

func TestResolveLanguage_Default(t *testing.T) {
	got := resolveLanguage("fr-FR", "", nil)
	if got != "fr-FR" {
		t.Errorf("resolveLanguage(fr-FR, \"\", nil): got %q, want %q", got, "fr-FR")
	}
}
