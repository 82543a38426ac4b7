package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistrySpecsIncludeDefaults(t *testing.T) {
	r := NewRegistry()
	names := map[string]bool{}
	for _, s := range r.Specs() {
		names[s.Name] = true
	}
	for _, want := range []string{"get_local_date_time", "get_current_weather", "load_context"} {
		if !names[want] {
			t.Errorf("expected spec %q to be registered", want)
		}
	}
}

func TestCallUnknownToolReturnsStructuredError(t *testing.T) {
	r := NewRegistry()
	out := r.Call("does_not_exist", "{}")
	if !strings.Contains(out, "unknown tool") {
		t.Fatalf("expected unknown-tool error, got %q", out)
	}
}

func TestCallInvalidArgumentsReturnsStructuredError(t *testing.T) {
	r := NewRegistry()
	out := r.Call("get_current_weather", "{not json")
	if !strings.Contains(out, "invalid arguments") {
		t.Fatalf("expected invalid-arguments error, got %q", out)
	}
}

func TestCallLocalDateTime(t *testing.T) {
	r := NewRegistry()
	out := r.Call("get_local_date_time", "{}")
	if !strings.Contains(out, "date_time") || !strings.Contains(out, "weekday") {
		t.Fatalf("expected date_time/weekday fields, got %q", out)
	}
}

func TestCallWeatherRequiresLocation(t *testing.T) {
	r := NewRegistry()
	out := r.Call("get_current_weather", `{}`)
	if !strings.Contains(out, "error") {
		t.Fatalf("expected an error for missing location, got %q", out)
	}
}

func TestCallWeatherStubReturnsLocation(t *testing.T) {
	r := NewRegistry()
	out := r.Call("get_current_weather", `{"location":"Paris, France"}`)
	if !strings.Contains(out, "Paris, France") {
		t.Fatalf("expected location echoed back, got %q", out)
	}
}

func TestCallLoadContextReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir("context", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join("context", "greeting.txt"), []byte("hello there"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	out := r.Call("load_context", `{"name":"greeting"}`)
	if out != "hello there" {
		t.Fatalf("expected file contents, got %q", out)
	}
}

func TestCallLoadContextMissingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	out := r.Call("load_context", `{"name":"nope"}`)
	if !strings.Contains(out, "error") {
		t.Fatalf("expected an error for a missing context file, got %q", out)
	}
}
