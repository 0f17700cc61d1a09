package remote

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// SSHConfig configures how to log into the hosts.
type SSHConfig struct {
	User string
	// Private key file.
	KeyPath string
	// Defaults to 22.
	Port int
	// Timeout of a single connection attempt. Defaults to 10s.
	DialTimeout time.Duration
	// Number of connection attempts per host. Defaults to 3.
	DialAttempts uint
}

// SSHExecutor implements Executor over ssh, and copies files with sftp.
// Connections are opened on first use and kept until Close, or until they break.
type SSHExecutor struct {
	config       *ssh.ClientConfig
	port         int
	dialAttempts uint
	logger       *log.Entry

	mu      sync.Mutex
	clients map[string]*ssh.Client
}

func NewSSHExecutor(config SSHConfig, logger *log.Entry) (*SSHExecutor, error) {
	key, err := os.ReadFile(config.KeyPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse ssh key %s", config.KeyPath)
	}
	if config.Port == 0 {
		config.Port = 22
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.DialAttempts == 0 {
		config.DialAttempts = 3
	}
	return &SSHExecutor{
		config: &ssh.ClientConfig{
			User: config.User,
			Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
			// Testbed instances are created on demand and their host keys aren't known in advance.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         config.DialTimeout,
		},
		port:         config.Port,
		dialAttempts: config.DialAttempts,
		logger:       logger,
		clients:      make(map[string]*ssh.Client),
	}, nil
}

func (e *SSHExecutor) client(ctx context.Context, host string) (*ssh.Client, error) {
	e.mu.Lock()
	client, ok := e.clients[host]
	e.mu.Unlock()
	if ok {
		return client, nil
	}

	// Dial without holding the lock, so that a group connects to its hosts in parallel.
	addr := net.JoinHostPort(host, strconv.Itoa(e.port))
	err := retry.Do(
		func() error {
			var err error
			client, err = ssh.Dial("tcp", addr, e.config)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(e.dialAttempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			e.logger.WithError(err).Debugf("failed to connect to %s (attempt %d)", addr, n+1)
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.clients[host]; ok {
		_ = client.Close()
		return existing, nil
	}
	e.clients[host] = client
	return client, nil
}

func (e *SSHExecutor) Run(ctx context.Context, host, command string) (*Output, error) {
	var session *ssh.Session
	err := e.reconnecting(ctx, host, func(client *ssh.Client) (err error) {
		session, err = client.NewSession()
		return err
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, errors.WithStack(ctx.Err())
	case err = <-done:
	}

	output := &Output{Host: host, Command: command, Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return output, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return output, errors.WithStack(&bencherrors.ErrExecution{
			Host:       host,
			Command:    command,
			Stderr:     output.Stderr,
			ExitStatus: exitErr.ExitStatus(),
		})
	}
	return output, errors.WithStack(&bencherrors.ErrExecution{
		Host:       host,
		Command:    command,
		Stderr:     err.Error(),
		ExitStatus: -1,
	})
}

func (e *SSHExecutor) Put(ctx context.Context, host, localPath, remotePath string) error {
	return e.withSftp(ctx, host, func(client *sftp.Client) error {
		src, err := os.Open(localPath)
		if err != nil {
			return errors.WithStack(err)
		}
		defer src.Close()
		dst, err := client.Create(remotePath)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s on %s", remotePath, host)
		}
		defer dst.Close()
		_, err = io.Copy(dst, src)
		return errors.Wrapf(err, "failed to upload %s to %s", localPath, host)
	})
}

func (e *SSHExecutor) Get(ctx context.Context, host, remotePath, localPath string) error {
	return e.withSftp(ctx, host, func(client *sftp.Client) error {
		src, err := client.Open(remotePath)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s on %s", remotePath, host)
		}
		defer src.Close()
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return errors.WithStack(err)
		}
		dst, err := os.Create(localPath)
		if err != nil {
			return errors.WithStack(err)
		}
		defer dst.Close()
		_, err = io.Copy(dst, src)
		return errors.Wrapf(err, "failed to download %s from %s", remotePath, host)
	})
}

func (e *SSHExecutor) withSftp(ctx context.Context, host string, f func(client *sftp.Client) error) error {
	var client *sftp.Client
	err := e.reconnecting(ctx, host, func(conn *ssh.Client) (err error) {
		client, err = sftp.NewClient(conn)
		return err
	})
	if err != nil {
		return err
	}
	defer client.Close()
	return f(client)
}

// reconnecting calls open with the connection to host. If open fails, the connection
// is assumed dead: it is dropped and open is tried once more on a new one.
func (e *SSHExecutor) reconnecting(ctx context.Context, host string, open func(client *ssh.Client) error) error {
	client, err := e.client(ctx, host)
	if err != nil {
		return err
	}
	err = open(client)
	if err == nil {
		return nil
	}
	e.logger.WithError(err).Debugf("lost connection to %s, reconnecting", host)
	e.drop(host, client)

	client, err = e.client(ctx, host)
	if err != nil {
		return err
	}
	return errors.WithStack(open(client))
}

func (e *SSHExecutor) drop(host string, client *ssh.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clients[host] == client {
		delete(e.clients, host)
	}
	_ = client.Close()
}

// Close closes every connection and returns the first error.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var rv error
	for host, client := range e.clients {
		if err := client.Close(); err != nil && rv == nil {
			rv = errors.Wrapf(err, "failed to close connection to %s", host)
		}
		delete(e.clients, host)
	}
	return rv
}
