// Package providers defines the catalog of cloud providers the launcher
// knows how to drive. A descriptor carries everything provider-agnostic
// code needs (credential variable names, the JSON paths to poll, the
// target status) while the actual REST glue stays with the caller that
// supplies the API callback.
package providers

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/spinup/spinup/pkg/credentials"
	"github.com/spinup/spinup/pkg/jsonq"
)

// Descriptor describes one provider entry in the catalog.
type Descriptor struct {
	// Name is the catalog key (e.g. "hetzner").
	Name string `yaml:"name" validate:"required"`

	// Label is the human-readable name used in messages.
	Label string `yaml:"label" validate:"required"`

	// AuthSpec names the credential variables, multi-variable auth joined
	// with " + ". Strings that are not variable lists ("none",
	// "gcloud auth login") mean no environment-variable credential.
	AuthSpec string `yaml:"auth"`

	// TargetStatus is the provider status string meaning the instance is
	// running.
	TargetStatus string `yaml:"target_status" validate:"required"`

	// StatusPath extracts the instance status from the API response.
	StatusPath jsonq.Path `yaml:"status_path" validate:"required"`

	// IPPath extracts the public address from the API response.
	IPPath jsonq.Path `yaml:"ip_path" validate:"required"`

	// SSHUser overrides the default SSH user for this provider's images.
	SSHUser string `yaml:"ssh_user"`

	// DefaultRegion is used when the caller does not pick one.
	DefaultRegion string `yaml:"default_region"`
}

// Credential builds the provider's credential from its auth spec. The
// second return value is false for no-auth providers.
func (d Descriptor) Credential() (credentials.Credential, bool) {
	names := credentials.ParseAuthSpec(d.AuthSpec)
	if len(names) == 0 {
		return credentials.Credential{Provider: d.Name}, false
	}
	if len(names) == 1 {
		return credentials.Single(d.Name, names[0]), true
	}
	return credentials.Multi(d.Name, names...), true
}

// Catalog is the set of known providers, keyed by name.
type Catalog struct {
	providers map[string]Descriptor
}

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Providers []Descriptor `yaml:"providers"`
}

var validate = validator.New()

// NewCatalog builds a catalog from descriptors, validating each entry.
func NewCatalog(descriptors ...Descriptor) (*Catalog, error) {
	c := &Catalog{providers: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("invalid provider descriptor %q: %w", d.Name, err)
		}
		if _, exists := c.providers[d.Name]; exists {
			return nil, fmt.Errorf("duplicate provider %q", d.Name)
		}
		c.providers[d.Name] = d
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewCatalog(file.Providers...)
}

// DefaultCatalog returns the built-in provider set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Descriptor{
			Name:          "hetzner",
			Label:         "Hetzner Cloud",
			AuthSpec:      "HCLOUD_TOKEN",
			TargetStatus:  "running",
			StatusPath:    "server.status",
			IPPath:        "server.public_net.ipv4.ip",
			DefaultRegion: "fsn1",
		},
		Descriptor{
			Name:          "digitalocean",
			Label:         "DigitalOcean",
			AuthSpec:      "DO_API_TOKEN",
			TargetStatus:  "active",
			StatusPath:    "droplet.status",
			IPPath:        "droplet.networks.v4.0.ip_address",
			DefaultRegion: "nyc3",
		},
		Descriptor{
			Name:          "vultr",
			Label:         "Vultr",
			AuthSpec:      "VULTR_API_KEY",
			TargetStatus:  "active",
			StatusPath:    "instance.status",
			IPPath:        "instance.main_ip",
			DefaultRegion: "ewr",
		},
		Descriptor{
			Name:          "aws",
			Label:         "AWS EC2",
			AuthSpec:      "AWS_ACCESS_KEY_ID + AWS_SECRET_ACCESS_KEY",
			TargetStatus:  "running",
			StatusPath:    "Reservations.0.Instances.0.State.Name",
			IPPath:        "Reservations.0.Instances.0.PublicIpAddress",
			SSHUser:       "ubuntu",
			DefaultRegion: "us-east-1",
		},
		Descriptor{
			Name:         "local",
			Label:        "Local machine",
			AuthSpec:     "none",
			TargetStatus: "ready",
			StatusPath:   "status",
			IPPath:       "address",
		},
	)
	if err != nil {
		// The built-in set is fixed; a validation failure here is a bug.
		panic(err)
	}
	return c
}

// Get returns the descriptor for name.
func (c *Catalog) Get(name string) (Descriptor, error) {
	d, ok := c.providers[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown provider %q (known: %v)", name, c.Names())
	}
	return d, nil
}

// Names returns the provider names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
