package transfer

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

const sshDialTimeout = 30 * time.Second

// SSH streams files over an SSH session into a temporary name and renames
// them into place once the upload is complete.
type SSH struct {
	addr   string
	target string
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

func NewSSH(cfg types.TransferConfig) (*SSH, error) {
	key, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		return nil, errors.NewFileError(cfg.IdentityFile, "read", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity file %s: %w", cfg.IdentityFile, err)
	}
	return newSSH(cfg, ssh.PublicKeys(signer))
}

func newSSH(cfg types.TransferConfig, auth ssh.AuthMethod) (*SSH, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", cfg.KnownHostsFile, err)
		}
		hostKey = cb
	} else {
		log.Warn().Str("host", cfg.Host).Msg("No known hosts file configured, host key is not verified")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &SSH{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		target: cfg.Target,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: hostKey,
			Timeout:         sshDialTimeout,
		},
	}, nil
}

// connect returns the shared client, dialing again when the last connection broke.
func (s *SSH) connect() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return s.client, nil
		}
		s.client.Close()
		s.client = nil
	}
	client, err := ssh.Dial("tcp", s.addr, s.config)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func (s *SSH) Send(ctx context.Context, localPath, destination string) error {
	if path.Base(destination) != destination {
		return errors.Permanent("send", destination, errors.ErrInvalidArgument)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Classified("send", destination, err)
	}
	defer f.Close()

	client, err := s.connect()
	if err != nil {
		return errors.Classified("send", destination, fmt.Errorf("ssh dial %s: %w", s.addr, err))
	}
	session, err := client.NewSession()
	if err != nil {
		return errors.Transient("send", destination, fmt.Errorf("ssh session: %w", err))
	}
	defer session.Close()

	var stderr strings.Builder
	session.Stdin = f
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(uploadCommand(s.target, destination)) }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return errors.Transient("send", destination, ctx.Err())
	case err := <-done:
		if err != nil {
			return errors.Classified("send", destination, fmt.Errorf("remote upload failed: %w: %s", err, strings.TrimSpace(stderr.String())))
		}
	}
	return nil
}

// Close drops the shared connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// uploadCommand writes stdin to a hidden partial file and renames it into place.
func uploadCommand(dir, name string) string {
	final := path.Join(dir, name)
	partial := path.Join(dir, "."+name+".partial")
	return fmt.Sprintf("mkdir -p %s && cat > %s && mv -f %s %s || { rm -f %s; exit 1; }",
		shellQuote(dir), shellQuote(partial), shellQuote(partial), shellQuote(final), shellQuote(partial))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
