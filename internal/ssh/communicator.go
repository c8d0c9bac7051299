// Package ssh is the remote execution layer: it runs commands and moves
// file content to and from cluster nodes over SSH.
package ssh

import (
	"context"
	"os"
)

// Result is the outcome of a remote command that actually ran. A
// non-zero exit code is a command-level failure, not a Go error; Go
// errors are reserved for transport failures (dial, auth, session).
type Result struct {
	ExitCode int
	Output   string
}

// Success reports whether the command exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Communicator executes operations on one remote node.
type Communicator interface {
	// RunCommand runs command remotely and blocks until it exits.
	RunCommand(ctx context.Context, command string) (Result, error)

	// UploadText writes content to path on the node with the given
	// mode. owner is a chown spec ("user:group"); empty leaves
	// ownership untouched.
	UploadText(ctx context.Context, path, content string, mode os.FileMode, owner string) error

	// DownloadText reads the file at path on the node.
	DownloadText(ctx context.Context, path string) (string, error)
}
