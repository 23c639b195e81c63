package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingestd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	// WHAT: An empty file yields the defaults.
	// WHY: Every field must have a sane zero-config value.
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "fs" || cfg.MaxFileMB != 100 || cfg.QueueSize != 16 {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.MaxFileBytes() != 100*1024*1024 {
		t.Errorf("max bytes = %d", cfg.MaxFileBytes())
	}
	if !cfg.Vision.EscalateTables {
		t.Error("escalate_tables default = false, want true")
	}
}

func TestLoadConfig_Override(t *testing.T) {
	// WHAT: File values override defaults; the rest survive.
	// WHY: Partial configs are the normal case.
	cfg, err := LoadConfig(writeConfig(t, "backend: sqlite\ndb_path: /tmp/x.db\nmax_file_mb: 10\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "sqlite" || cfg.MaxFileMB != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.QueueSize != 16 {
		t.Errorf("queue size = %d, want default kept", cfg.QueueSize)
	}
}

func TestConfigValidate(t *testing.T) {
	// WHAT: Invalid combinations are rejected with a field name.
	// WHY: Misconfiguration should fail at boot, not mid-batch.
	tests := []struct {
		yaml string
		want string
	}{
		{"backend: s3\n", "unsupported backend"},
		{"backend: sqlite\ndb_path: \"\"\n", "db_path"},
		{"max_file_mb: -1\n", "max_file_mb"},
		{"queue_size: 0\n", "queue_size"},
		{"vision:\n  enabled: true\n", "vision.base_url"},
		{"vision:\n  enabled: true\n  base_url: http://x\n", "vision.model"},
	}
	for _, tt := range tests {
		_, err := LoadConfig(writeConfig(t, tt.yaml))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("config %q: err = %v, want %q", tt.yaml, err, tt.want)
		}
	}
}
