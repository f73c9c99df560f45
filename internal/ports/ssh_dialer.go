package ports

import "golang.org/x/crypto/ssh"

// SSHDialer abstracts SSH connection establishment so the pool can be
// exercised against a fake transport in unit tests.
type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}
