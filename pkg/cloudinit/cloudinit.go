// Package cloudinit holds the fixed bootstrap document applied to every
// provisioned instance. The document takes no inputs: the same payload is
// rendered on every boot, and completion is signalled by a marker file that
// the readiness poller watches for.
package cloudinit

// MarkerPath is the file the bootstrap writes last. Its presence means every
// earlier step completed.
const MarkerPath = "/var/lib/spinup/bootstrap-complete"

// ProfilePath is the shell profile that injected credentials are appended to
// and that the agent command sources before launching.
const ProfilePath = "/root/.spinup_profile"

const document = `#cloud-config
package_update: true
packages:
  - git
  - curl
  - build-essential
  - tmux
  - jq
runcmd:
  - curl -fsSL https://deb.nodesource.com/setup_22.x | bash -
  - apt-get install -y nodejs
  - npm install -g @anthropic-ai/claude-code
  - curl -fsSL https://astral.sh/uv/install.sh | sh
  - echo 'export PATH=$PATH:/usr/local/bin:/root/.local/bin' >> /root/.spinup_profile
  - echo 'export PATH=$PATH:/usr/local/bin:/root/.local/bin' >> /root/.bashrc
  - mkdir -p /var/lib/spinup
  - touch /var/lib/spinup/bootstrap-complete
`

// Document returns the cloud-init user data. The content is identical on
// every call; providers pass it verbatim at instance create time.
func Document() string {
	return document
}
