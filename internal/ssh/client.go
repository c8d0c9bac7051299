package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	dialTimeout       = 10 * time.Second
	dialAttempts      = 6
	dialRetryDelay    = 5 * time.Second
	defaultRemotePort = 22
)

// Client implements Communicator over the SSH protocol. Each operation
// dials a fresh connection; nodes reboot during setup and a cached
// session would go stale.
type Client struct {
	host       string
	port       int
	user       string
	privateKey []byte
	password   string
}

// NewClient creates a client for one host. privateKey takes precedence
// over password when both are set.
func NewClient(host string, port int, user string, privateKey []byte, password string) *Client {
	if port == 0 {
		port = defaultRemotePort
	}
	return &Client{host: host, port: port, user: user, privateKey: privateKey, password: password}
}

func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if len(c.privateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(c.privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.password != "" {
		methods = append(methods, ssh.Password(c.password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no ssh credentials configured")
	}
	return methods, nil
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            c.user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // nodes are freshly provisioned, no known_hosts yet
		Timeout:         dialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *ssh.Client
	for attempt := 0; attempt < dialAttempts; attempt++ {
		client, err = ssh.Dial("tcp", addr, config)
		if err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
}

// RunCommand implements Communicator. A remote non-zero exit is
// reported through Result, not the error.
func (c *Client) RunCommand(ctx context.Context, command string) (Result, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	err = session.Run(command)
	if err == nil {
		return Result{ExitCode: 0, Output: output.String()}, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitStatus(), Output: output.String()}, nil
	}
	return Result{}, fmt.Errorf("failed to execute command: %w", err)
}

// UploadText implements Communicator by streaming content into a
// remote write. Avoids an SFTP dependency; every node ships a shell.
func (c *Client) UploadText(ctx context.Context, path, content string, mode os.FileMode, owner string) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = strings.NewReader(content)

	cmd := fmt.Sprintf("mkdir -p $(dirname %[1]s) && cat > %[1]s && chmod %[2]o %[1]s", path, mode.Perm())
	if owner != "" {
		cmd += fmt.Sprintf(" && chown %s %s", owner, path)
	}
	if output, err := session.CombinedOutput(cmd); err != nil {
		return fmt.Errorf("failed to upload %s: %w, output: %s", path, err, output)
	}
	return nil
}

// DownloadText implements Communicator.
func (c *Client) DownloadText(ctx context.Context, path string) (string, error) {
	result, err := c.RunCommand(ctx, fmt.Sprintf("cat %s", path))
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", fmt.Errorf("failed to read %s (exit %d): %s", path, result.ExitCode, result.Output)
	}
	return result.Output, nil
}
