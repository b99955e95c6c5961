package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "api_key: k1\ninstall_path: /opt/comfy\nbase_url: http://x\nlog_level: debug\ntoken_store: keyring\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "k1" || cfg.InstallPath != "/opt/comfy" || cfg.BaseURL != "http://x" || cfg.LogLevel != "debug" || cfg.TokenStore != "keyring" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"api_key":"k2","install_path":"/m","metrics_file":"/tmp/m.prom","user_agent":"ua"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "k2" || cfg.InstallPath != "/m" || cfg.MetricsFile != "/tmp/m.prom" || cfg.UserAgent != "ua" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "api_key=\"k3\"\ninstall_path=\"/x\"\nlog_level=\"warn\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "k3" || cfg.InstallPath != "/x" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestSaveRoundTripAndPerms(t *testing.T) {
	for _, name := range []string{"c.toml", "c.yaml", "c.json"} {
		p := filepath.Join(t.TempDir(), "nested", name)
		in := Config{APIKey: "secret", InstallPath: "/comfy", LogLevel: "debug"}
		if err := Save(p, in); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := fi.Mode().Perm(); perm != 0o600 {
			t.Fatalf("%s perm=%o want 600", name, perm)
		}
		out, err := Load(p)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if out != in {
			t.Fatalf("%s round trip: got %+v want %+v", name, out, in)
		}
	}
	if err := Save(filepath.Join(t.TempDir(), "c.ini"), Config{}); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestLoadOrEmpty(t *testing.T) {
	cfg, exists, err := LoadOrEmpty(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil || exists || cfg != (Config{}) {
		t.Fatalf("cfg=%+v exists=%v err=%v", cfg, exists, err)
	}
	p := writeTempFile(t, t.TempDir(), "c.toml", "api_key=\"a\"\n")
	cfg, exists, err = LoadOrEmpty(p)
	if err != nil || !exists || cfg.APIKey != "a" {
		t.Fatalf("cfg=%+v exists=%v err=%v", cfg, exists, err)
	}
}

func TestWithDefaultsAndEnv(t *testing.T) {
	cfg := Config{LogLevel: "warn"}.WithDefaults()
	if cfg.InstallPath != DefaultInstallPath || cfg.BaseURL != DefaultBaseURL || cfg.LogLevel != "warn" || cfg.TokenStore != TokenStoreFile {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	env := map[string]string{"CIVITDL_INSTALL_PATH": "/env/comfy", "CIVITDL_LOG_LEVEL": "debug"}
	cfg = cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.InstallPath != "/env/comfy" || cfg.LogLevel != "debug" || cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected env overrides: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{TokenStore: "vault"}).Validate(); err == nil {
		t.Fatalf("expected token_store error")
	}
	if err := (Config{TokenStore: TokenStoreKeyring}).Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestLooksLikeComfyUI(t *testing.T) {
	d := t.TempDir()
	if LooksLikeComfyUI(d) {
		t.Fatalf("empty dir should not look like ComfyUI")
	}
	if err := os.Mkdir(filepath.Join(d, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !LooksLikeComfyUI(d) {
		t.Fatalf("dir with models/ should look like ComfyUI")
	}
	if LooksLikeComfyUI("") {
		t.Fatalf("empty path")
	}
}
