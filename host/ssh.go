package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/host/types"
)

// SshClientConfig holds tunables for the SSH client. Zero values use the
// golang.org/x/crypto/ssh defaults.
type SshClientConfig struct {
	RekeyThreshold    uint64
	KeyExchanges      []string
	Ciphers           []string
	MACs              []string
	HostKeyAlgorithms []string
	Timeout           time.Duration
}

var DefaultSshTCPConnectTimeout = time.Second * 30

// Ssh interacts with a remote machine connecting to it via SSH protocol. File
// operations use the SFTP subsystem.
type Ssh struct {
	Hostname   string
	client     *ssh.Client
	sftpClient *sftp.Client
}

func sshReadSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	defer term.Restore(fd, state)

	fmt.Print(prompt)
	secret, err := term.ReadPassword(fd)
	if err != nil {
		return nil, err
	}
	fmt.Print("\n\r")
	return secret, nil
}

func sshGetSigners(ctx context.Context) ([]ssh.Signer, error) {
	logger := log.MustLogger(ctx)

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	signers := []ssh.Signer{}
	for _, keyName := range []string{"id_rsa", "id_ecdsa", "id_ecdsa_sk", "id_ed25519", "id_ed25519_sk", "id_dsa"} {
		keyPath := filepath.Join(home, ".ssh", keyName)
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("unable to read %s: %w", keyPath, err)
		}

		signer, err := ssh.ParsePrivateKey(keyBytes)
		var passphraseMissingError *ssh.PassphraseMissingError
		if errors.As(err, &passphraseMissingError) {
			var passphrase []byte
			passphrase, err = sshReadSecret(fmt.Sprintf("Password for %s: ", keyPath))
			if err != nil {
				return nil, err
			}
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, passphrase)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse %s: %w", keyPath, err)
		}
		logger.Debug("Using private key", "path", keyPath)
		signers = append(signers, signer)
	}
	return signers, nil
}

func sshGetHostKeyCallback(ctx context.Context, fingerprint string) (ssh.HostKeyCallback, error) {
	logger := log.MustLogger(ctx)

	if fingerprint != "" {
		if !strings.HasPrefix(fingerprint, "SHA256:") {
			return nil, fmt.Errorf(
				"fingerprint must be an unpadded base64 encoded sha256 hash, eg: %s",
				"SHA256:uwhOoCVTS7b3wlX1popZs5k609OaD1vQurHU34cCWPk",
			)
		}
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			hostFingerprint := ssh.FingerprintSHA256(key)
			if fingerprint != hostFingerprint {
				return fmt.Errorf("expected host fingerprint %s, got %s", fingerprint, hostFingerprint)
			}
			logger.Debug("Server key verified by fingerprint")
			return nil
		}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, knownHosts := range []string{"/etc/ssh/ssh_known_hosts", filepath.Join(home, ".ssh/known_hosts")} {
		if _, err := os.Stat(knownHosts); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		logger.Debug("Using known hosts", "path", knownHosts)
		files = append(files, knownHosts)
	}
	return knownhosts.New(files...)
}

func sshKeyboardInteractiveChallenge(name, instruction string, questions []string, echos []bool) ([]string, error) {
	if name != "" {
		fmt.Printf("Name: %s\n", name)
	}
	if instruction != "" {
		fmt.Printf("Instruction: %s\n", instruction)
	}

	answers := make([]string, len(questions))
	for i, question := range questions {
		if echos[i] {
			fmt.Printf("%s: ", question)
			if _, err := fmt.Scan(&answers[i]); err != nil {
				return nil, err
			}
			continue
		}
		answer, err := sshReadSecret(question)
		if err != nil {
			return nil, err
		}
		answers[i] = string(answer)
	}
	return answers, nil
}

// NewSsh connects to host:port as user. When fingerprint is not empty, the
// server key is verified against it, otherwise known_hosts files are used.
func NewSsh(
	ctx context.Context,
	user, fingerprint, host string,
	port int,
	clientConfig SshClientConfig,
) (*Ssh, error) {
	timeout := clientConfig.Timeout
	if timeout == 0 {
		timeout = DefaultSshTCPConnectTimeout
	}
	ctx, logger := log.MustWithGroupAttrs(
		ctx, "🖧 SSH",
		"user", user,
		"host", host,
		"port", port,
	)
	logger.Debug("Connecting", "timeout", timeout)

	signers, err := sshGetSigners(ctx)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := sshGetHostKeyCallback(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	retries := 3
	client, err := ssh.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)), &ssh.ClientConfig{
		Config: ssh.Config{
			RekeyThreshold: clientConfig.RekeyThreshold,
			KeyExchanges:   clientConfig.KeyExchanges,
			Ciphers:        clientConfig.Ciphers,
			MACs:           clientConfig.MACs,
		},
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signers...),
			ssh.RetryableAuthMethod(ssh.PasswordCallback(func() (string, error) {
				password, err := sshReadSecret("Password: ")
				return string(password), err
			}), retries),
			ssh.RetryableAuthMethod(ssh.KeyboardInteractive(sshKeyboardInteractiveChallenge), retries),
		},
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: clientConfig.HostKeyAlgorithms,
		Timeout:           timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to start sftp: %w", err), client.Close())
	}

	return &Ssh{
		Hostname:   host,
		client:     client,
		sftpClient: sftpClient,
	}, nil
}

var authorityRegexp = regexp.MustCompile(`^(|((?P<user>[^;@]+)(|;fingerprint=(?P<fingerprint>[^@]+))@))(?P<host>[^:|@]+)(|:(?P<port>[0-9]+))$`)

func parseAuthority(authority string) (string, string, string, int, error) {
	matches := authorityRegexp.FindStringSubmatch(authority)
	if matches == nil {
		return "", "", "", 0, errors.New(
			"invalid authority format, it must match [<user>[;fingerprint=<host-key fingerprint>]@]<host>[:<port>]",
		)
	}
	usr := matches[authorityRegexp.SubexpIndex("user")]
	if usr == "" {
		currentUser, err := user.Current()
		if err != nil {
			return "", "", "", 0, err
		}
		usr = currentUser.Username
	}
	fingerprint := matches[authorityRegexp.SubexpIndex("fingerprint")]
	host := matches[authorityRegexp.SubexpIndex("host")]
	port := 22
	if portStr := matches[authorityRegexp.SubexpIndex("port")]; portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return "", "", "", 0, fmt.Errorf("invalid port number: %w", err)
		}
	}

	return usr, fingerprint, host, port, nil
}

// NewSshAuthority creates a new Ssh from given authority in the format
// [<user>[;fingerprint=<host-key fingerprint>]@]<host>[:<port>]
// based on https://www.iana.org/assignments/uri-schemes/prov/ssh
func NewSshAuthority(ctx context.Context, authority string, clientConfig SshClientConfig) (*Ssh, error) {
	user, fingerprint, host, port, err := parseAuthority(authority)
	if err != nil {
		return nil, err
	}
	return NewSsh(ctx, user, fingerprint, host, port, clientConfig)
}

func (h *Ssh) getPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		pathErr.Op = op
		return pathErr
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func (h *Ssh) Lstat(ctx context.Context, name string) (*types.Stat_t, error) {
	if !filepath.IsAbs(name) {
		return nil, h.getPathError("Lstat", name, errors.New("path must be absolute"))
	}
	fileInfo, err := h.sftpClient.Lstat(name)
	if err != nil {
		return nil, h.getPathError("Lstat", name, err)
	}
	fileStat, ok := fileInfo.Sys().(*sftp.FileStat)
	if !ok {
		return nil, h.getPathError("Lstat", name, fmt.Errorf("unexpected stat type %T", fileInfo.Sys()))
	}
	return &types.Stat_t{
		Mode: fileStat.Mode,
		Uid:  fileStat.UID,
		Gid:  fileStat.GID,
		Size: int64(fileStat.Size),
		Mtim: types.Timespec{Sec: int64(fileStat.Mtime)},
	}, nil
}

func (h *Ssh) ReadDir(ctx context.Context, name string) (<-chan types.DirEntResult, func()) {
	ctx, cancel := context.WithCancel(ctx)
	dirEntResultCh := make(chan types.DirEntResult, 100)

	go func() {
		defer close(dirEntResultCh)

		var results []types.DirEntResult
		if !filepath.IsAbs(name) {
			results = []types.DirEntResult{{Error: h.getPathError("ReadDir", name, errors.New("path must be absolute"))}}
		} else if fileInfos, err := h.sftpClient.ReadDir(name); err != nil {
			results = []types.DirEntResult{{Error: h.getPathError("ReadDir", name, err)}}
		} else {
			for _, fileInfo := range fileInfos {
				results = append(results, types.DirEntResult{DirEnt: types.DirEnt{
					Type: types.DirEntTypeFromFs(fileInfo.Mode()),
					Name: fileInfo.Name(),
				}})
			}
		}

		for _, result := range results {
			select {
			case dirEntResultCh <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return dirEntResultCh, cancel
}

func (h *Ssh) Mkdir(ctx context.Context, name string, mode types.FileMode) error {
	if !filepath.IsAbs(name) {
		return h.getPathError("Mkdir", name, errors.New("path must be absolute"))
	}
	if err := h.sftpClient.Mkdir(name); err != nil {
		// SFTP v3 has no specific status for an existing path.
		if _, lstatErr := h.sftpClient.Lstat(name); lstatErr == nil {
			return h.getPathError("Mkdir", name, fs.ErrExist)
		}
		return h.getPathError("Mkdir", name, err)
	}
	return h.getPathError("Mkdir", name, h.sftpClient.Chmod(name, mode.FsFileMode()))
}

func (h *Ssh) ReadFile(ctx context.Context, name string) (io.ReadCloser, error) {
	if !filepath.IsAbs(name) {
		return nil, h.getPathError("ReadFile", name, errors.New("path must be absolute"))
	}
	file, err := h.sftpClient.Open(name)
	if err != nil {
		return nil, h.getPathError("ReadFile", name, err)
	}
	return file, nil
}

func (h *Ssh) Symlink(ctx context.Context, oldname, newname string) error {
	if !filepath.IsAbs(newname) {
		return h.getPathError("Symlink", newname, errors.New("path must be absolute"))
	}
	return h.getPathError("Symlink", newname, h.sftpClient.Symlink(oldname, newname))
}

func (h *Ssh) Remove(ctx context.Context, name string) error {
	if !filepath.IsAbs(name) {
		return h.getPathError("Remove", name, errors.New("path must be absolute"))
	}
	return h.getPathError("Remove", name, h.sftpClient.Remove(name))
}

func (h *Ssh) WriteFile(ctx context.Context, name string, data io.Reader, mode types.FileMode) error {
	if !filepath.IsAbs(name) {
		return h.getPathError("WriteFile", name, errors.New("path must be absolute"))
	}
	file, err := h.sftpClient.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return h.getPathError("WriteFile", name, err)
	}
	if _, err := file.ReadFrom(data); err != nil {
		return h.getPathError("WriteFile", name, errors.Join(err, file.Close()))
	}
	if err := file.Close(); err != nil {
		return h.getPathError("WriteFile", name, err)
	}
	return h.getPathError("WriteFile", name, h.sftpClient.Chmod(name, mode.FsFileMode()))
}

func (h *Ssh) Run(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
	if cmd.Dir == "" {
		cmd.Dir = "/tmp"
	}
	if !filepath.IsAbs(cmd.Dir) {
		return types.WaitStatus{}, &fs.PathError{
			Op:   "Run",
			Path: cmd.Dir,
			Err:  errors.New("path must be absolute"),
		}
	}
	if len(cmd.Env) == 0 {
		cmd.Env = types.DefaultEnv
	}

	session, err := h.client.NewSession()
	if err != nil {
		return types.WaitStatus{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = cmd.Stdin
	session.Stdout = cmd.Stdout
	session.Stderr = cmd.Stderr

	words := []string{"cd", shellescape.Quote(cmd.Dir), "&&", "exec", "env", "--ignore-environment"}
	for _, nameValue := range cmd.Env {
		words = append(words, shellescape.Quote(nameValue))
	}
	words = append(words, shellescape.Quote(cmd.Path))
	for _, arg := range cmd.Args {
		words = append(words, shellescape.Quote(arg))
	}
	shellCmd := fmt.Sprintf("sh -c %s", shellescape.Quote(strings.Join(words, " ")))

	stopCh := make(chan struct{})
	defer close(stopCh)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGKILL)
			_ = session.Close()
		case <-stopCh:
		}
	}()

	if err := session.Run(shellCmd); err != nil {
		var exitError *ssh.ExitError
		if !errors.As(err, &exitError) {
			return types.WaitStatus{}, fmt.Errorf("failed to run %v: %w", cmd, err)
		}
		return checkCommandNotFound(cmd, types.WaitStatus{
			ExitCode: exitError.ExitStatus(),
			Exited:   exitError.Signal() == "",
			Signal:   exitError.Signal(),
		})
	}

	return types.WaitStatus{ExitCode: 0, Exited: true}, nil
}

func (h *Ssh) String() string {
	return h.Hostname
}

func (h *Ssh) Type() string {
	return "ssh"
}

func (h *Ssh) Close(ctx context.Context) error {
	return errors.Join(h.sftpClient.Close(), h.client.Close())
}
