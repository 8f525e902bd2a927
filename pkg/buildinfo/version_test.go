package buildinfo

import (
	"strings"
	"testing"
)

func TestTemplateIncludesVersion(t *testing.T) {
	old := Version
	Version = "v9.9.9"
	defer func() { Version = old }()

	if !strings.Contains(Template(), "version v9.9.9") {
		t.Errorf("Template() = %q", Template())
	}
	if !strings.Contains(String(), "version: v9.9.9") {
		t.Errorf("String() = %q", String())
	}
	if Get().Version != "v9.9.9" {
		t.Errorf("Get().Version = %q", Get().Version)
	}
}
