package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRequiresAtLeastOneFolder(t *testing.T) {
	if _, err := Parse([]string{}); err == nil {
		t.Fatal("expected an error when no -folders were given")
	}
}

func TestParseSplitsFolders(t *testing.T) {
	cfg, err := Parse([]string{"-folders", " /media/movies , /media/music "})
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	want := []string{"/media/movies", "/media/music"}
	if len(cfg.Folders) != 2 || cfg.Folders[0] != want[0] || cfg.Folders[1] != want[1] {
		t.Fatalf("Folders = %+v, want %+v", cfg.Folders, want)
	}
}

func TestLoadRenderersMissingDirIsEmpty(t *testing.T) {
	renderers, err := LoadRenderers(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadRenderers: %s", err)
	}
	if len(renderers) != 0 {
		t.Fatalf("expected no renderers for a missing directory, got %+v", renderers)
	}
}

func TestLoadRenderersParsesProfiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("bravia.renderer", "titleInsteadOfName=true\nhideFileExtension=true\n# a comment\n")
	write("generic.renderer", "titleInsteadOfName=false\n")
	write("notes.txt", "ignored, not a .renderer file")

	renderers, err := LoadRenderers(dir)
	if err != nil {
		t.Fatalf("LoadRenderers: %s", err)
	}
	if len(renderers) != 2 {
		t.Fatalf("got %d renderers, want 2 (notes.txt should be ignored): %+v", len(renderers), renderers)
	}
	bravia, ok := renderers["bravia"]
	if !ok || !bravia.TitleInsteadOfName || !bravia.HideFileExtension {
		t.Fatalf("bravia renderer = %+v, ok %v", bravia, ok)
	}
	generic, ok := renderers["generic"]
	if !ok || generic.TitleInsteadOfName {
		t.Fatalf("generic renderer = %+v, ok %v", generic, ok)
	}
}

func TestSelectRendererPrefersLongestSubstringMatch(t *testing.T) {
	renderers := map[string]RendererConfig{
		"bravia":    {Name: "bravia", TitleInsteadOfName: true},
		"bravia-4k": {Name: "bravia-4k", HideFileExtension: true},
		"samsung":   {Name: "samsung"},
	}
	got := SelectRenderer(renderers, "", "SonyBRAVIA-4K/1.0 UPnP/1.0")
	if got.Name != "bravia-4k" {
		t.Fatalf("SelectRenderer = %+v, want the longer bravia-4k match", got)
	}
}

func TestSelectRendererMatchIsCaseInsensitive(t *testing.T) {
	renderers := map[string]RendererConfig{
		"bravia": {Name: "bravia", TitleInsteadOfName: true},
	}
	got := SelectRenderer(renderers, "", "SonyBRAVIA/1.0 UPnP/1.0")
	if got.Name != "bravia" {
		t.Fatalf("SelectRenderer = %+v, want a case-insensitive bravia match", got)
	}
}

func TestSelectRendererFallsBackToDefault(t *testing.T) {
	renderers := map[string]RendererConfig{
		"samsung": {Name: "samsung", TitleInsteadOfName: true},
	}
	got := SelectRenderer(renderers, "samsung", "SomeUnknownClient/1.0")
	if got.Name != "samsung" {
		t.Fatalf("SelectRenderer = %+v, want the DefaultRenderer fallback", got)
	}
}

func TestSelectRendererFallsBackToZeroValue(t *testing.T) {
	got := SelectRenderer(nil, "", "AnyClient/1.0")
	if got != (RendererConfig{}) {
		t.Fatalf("SelectRenderer = %+v, want the zero value", got)
	}
}
