// Package login persists the credentials and join material generated
// during a setup run. The file is what makes an interrupted run
// resumable: while SetupPending is true, a fresh `setup` invocation
// reuses the recorded secrets instead of regenerating them.
package login

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the persisted login state for one cluster. Secrets in here
// are exactly the ones a re-run must not regenerate: rotating the SSH
// key or the certificate key mid-setup would strand half-joined nodes.
type File struct {
	ClusterName  string `yaml:"cluster_name"`
	SetupPending bool   `yaml:"setup_pending"`

	SSHUser       string `yaml:"ssh_user,omitempty"`
	SSHPrivateKey string `yaml:"ssh_private_key,omitempty"`
	SSHPublicKey  string `yaml:"ssh_public_key,omitempty"`
	NodePassword  string `yaml:"node_password,omitempty"`

	JoinEndpoint            string `yaml:"join_endpoint,omitempty"`
	WorkerJoinCommand       string `yaml:"worker_join_command,omitempty"`
	ControlPlaneJoinCommand string `yaml:"control_plane_join_command,omitempty"`
	CertificateKey          string `yaml:"certificate_key,omitempty"`
	CACertHash              string `yaml:"ca_cert_hash,omitempty"`

	Kubeconfig string `yaml:"kubeconfig,omitempty"`

	path string
}

// Path returns the default login file location for a cluster name.
func Path(dir, clusterName string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-login.yaml", clusterName))
}

// Load reads an existing login file. A missing file is reported with
// os.ErrNotExist so callers can branch on fresh-vs-resume.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read login file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse login file %s: %w", path, err)
	}
	f.path = path
	return &f, nil
}

// LoadOrCreate returns the existing login file, or a new pending one
// when none exists yet.
func LoadOrCreate(path, clusterName string) (*File, error) {
	f, err := Load(path)
	if err == nil {
		if f.ClusterName != clusterName {
			return nil, fmt.Errorf("login file %s belongs to cluster %q, not %q", path, f.ClusterName, clusterName)
		}
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &File{ClusterName: clusterName, SetupPending: true, path: path}, nil
}

// Save writes the login file with owner-only permissions. The write
// goes through a temp file and rename so an interrupted run never
// leaves a truncated file behind.
func (f *File) Save() error {
	if f.path == "" {
		return errors.New("login file has no path")
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal login file: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create login dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".login-*")
	if err != nil {
		return fmt.Errorf("failed to create temp login file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict login file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write login file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close login file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace login file: %w", err)
	}
	return nil
}

// Remove deletes the login file. Missing files are not an error.
func (f *File) Remove() error {
	if f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove login file: %w", err)
	}
	return nil
}

// HasJoinMaterial reports whether the control plane has been
// initialized and join commands recorded.
func (f *File) HasJoinMaterial() bool {
	return f.WorkerJoinCommand != "" && f.ControlPlaneJoinCommand != ""
}
