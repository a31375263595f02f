package providers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	names := c.Names()
	if len(names) == 0 {
		t.Fatal("default catalog is empty")
	}

	d, err := c.Get("hetzner")
	if err != nil {
		t.Fatalf("Get(hetzner) error: %v", err)
	}
	if d.TargetStatus != "running" {
		t.Errorf("hetzner target status = %q", d.TargetStatus)
	}

	cred, ok := d.Credential()
	if !ok {
		t.Fatal("hetzner has no credential")
	}
	if len(cred.Names) != 1 || cred.Names[0] != "HCLOUD_TOKEN" {
		t.Errorf("hetzner credential vars = %v", cred.Names)
	}
}

func TestMultiVariableCredential(t *testing.T) {
	c := DefaultCatalog()
	d, err := c.Get("aws")
	if err != nil {
		t.Fatalf("Get(aws) error: %v", err)
	}

	cred, ok := d.Credential()
	if !ok {
		t.Fatal("aws has no credential")
	}
	if !cred.IsMulti() {
		t.Error("aws credential is not multi-variable")
	}
	if len(cred.Names) != 2 {
		t.Errorf("aws credential has %d vars, want 2", len(cred.Names))
	}
}

func TestNoAuthProvider(t *testing.T) {
	c := DefaultCatalog()
	d, err := c.Get("local")
	if err != nil {
		t.Fatalf("Get(local) error: %v", err)
	}
	if _, ok := d.Credential(); ok {
		t.Error(`auth spec "none" produced a credential`)
	}
}

func TestGetUnknownProvider(t *testing.T) {
	c := DefaultCatalog()
	if _, err := c.Get("nonesuch"); err == nil {
		t.Error("Get() accepted an unknown provider")
	}
}

func TestNewCatalogValidation(t *testing.T) {
	// Missing required fields must be rejected.
	_, err := NewCatalog(Descriptor{Name: "broken"})
	if err == nil {
		t.Error("NewCatalog() accepted a descriptor without paths")
	}

	// Duplicates must be rejected.
	valid := Descriptor{
		Name: "x", Label: "X", TargetStatus: "active",
		StatusPath: "s", IPPath: "ip",
	}
	_, err = NewCatalog(valid, valid)
	if err == nil {
		t.Error("NewCatalog() accepted duplicate providers")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := `providers:
  - name: hetzner
    label: Hetzner Cloud
    auth: HCLOUD_TOKEN
    target_status: running
    status_path: server.status
    ip_path: server.public_net.ipv4.ip
    default_region: fsn1
  - name: local
    label: Local machine
    auth: none
    target_status: ready
    status_path: status
    ip_path: address
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	if got := len(c.Names()); got != 2 {
		t.Errorf("catalog has %d providers, want 2", got)
	}

	d, err := c.Get("hetzner")
	if err != nil {
		t.Fatalf("Get(hetzner) error: %v", err)
	}
	if d.IPPath != "server.public_net.ipv4.ip" {
		t.Errorf("ip path = %q", d.IPPath)
	}
}

func TestLoadCatalogBadFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadCatalog() succeeded on a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("providers: [not a mapping"), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Error("LoadCatalog() succeeded on invalid YAML")
	}
}
