package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	hostPkg "github.com/fornellas/roam/host"
	"github.com/fornellas/roam/host/types"
)

var ssh string
var defaultSsh = ""

var sshRekeyThreshold uint64
var defaultSshRekeyThreshold uint64 = 0

var sshKeyExchanges []string
var defaultSshKeyExchanges = []string{}

var sshCiphers []string
var defaultSshCiphers = []string{}

var sshMACs []string
var defaultSshMACs = []string{}

var sshHostKeyAlgorithms []string
var defaultSshHostKeyAlgorithms = []string{}

var sshTcpConnectTimeout time.Duration
var defaultSshTcpConnectTimeout = hostPkg.DefaultSshTCPConnectTimeout

var docker string
var defaultDocker = ""

// AddHostFlags adds flags to select the host a cluster installs at. Without any, it is
// localhost.
func AddHostFlags(cmd *cobra.Command) {
	hostFlagNames := []string{}

	// Ssh
	cmd.Flags().StringVarP(
		&ssh, "host-ssh", "s", defaultSsh,
		"Use given hostname using SSH in the format: [<user>[;fingerprint=<host-key fingerprint>]@]<host>[:<port>]",
	)
	hostFlagNames = append(hostFlagNames, "host-ssh")
	cmd.Flags().Uint64Var(
		&sshRekeyThreshold, "host-ssh-rekey-threshold", defaultSshRekeyThreshold,
		"The maximum number of bytes sent or received after which a new key is negotiated. It must be at least 256. If unspecified, a size suitable for the chosen cipher is used.",
	)
	cmd.Flags().StringSliceVar(
		&sshKeyExchanges, "host-ssh-key-exchanges", defaultSshKeyExchanges,
		"The allowed key exchanges algorithms. If unspecified then a default set of algorithms is used. Unsupported values are silently ignored.",
	)
	cmd.Flags().StringSliceVar(
		&sshCiphers, "host-ssh-ciphers", defaultSshCiphers,
		"The allowed cipher algorithms. If unspecified then a sensible default is used. Unsupported values are silently ignored.",
	)
	cmd.Flags().StringSliceVar(
		&sshMACs, "host-ssh-macs", defaultSshMACs,
		"The allowed MAC algorithms. If unspecified then a sensible default is used. Unsupported values are silently ignored.",
	)
	cmd.Flags().StringSliceVar(
		&sshHostKeyAlgorithms, "host-ssh-host-key-algorithms", defaultSshHostKeyAlgorithms,
		"Public key algorithms that the client will accept from the server for host key authentication, in order of preference. If empty, a reasonable default is used.",
	)
	cmd.Flags().DurationVar(
		&sshTcpConnectTimeout, "host-ssh-tcp-connect-timeout", defaultSshTcpConnectTimeout,
		"Timeout is the maximum amount of time for the TCP connection to establish. A Timeout of zero means no timeout.",
	)

	// Docker
	cmd.Flags().StringVarP(
		&docker, "host-docker", "d", defaultDocker,
		"Use given Docker container in the format '[<name|uid>[:<group|gid>]@]<container>'",
	)
	hostFlagNames = append(hostFlagNames, "host-docker")

	cmd.MarkFlagsMutuallyExclusive(hostFlagNames...)
}

// GetHostTarget returns the host type and target selected by the host flags.
func GetHostTarget() (string, string) {
	switch {
	case ssh != "":
		return hostPkg.TypeSsh, ssh
	case docker != "":
		return hostPkg.TypeDocker, docker
	default:
		return hostPkg.TypeLocal, ""
	}
}

func getSshClientConfig() hostPkg.SshClientConfig {
	return hostPkg.SshClientConfig{
		RekeyThreshold:    sshRekeyThreshold,
		KeyExchanges:      sshKeyExchanges,
		Ciphers:           sshCiphers,
		MACs:              sshMACs,
		HostKeyAlgorithms: sshHostKeyAlgorithms,
		Timeout:           sshTcpConnectTimeout,
	}
}

// GetHost connects to the host selected by the host flags.
func GetHost(ctx context.Context) (types.Host, error) {
	hostType, target := GetHostTarget()
	return hostPkg.New(ctx, hostType, target, getSshClientConfig())
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		ssh = defaultSsh
		sshRekeyThreshold = defaultSshRekeyThreshold
		sshKeyExchanges = defaultSshKeyExchanges
		sshCiphers = defaultSshCiphers
		sshMACs = defaultSshMACs
		sshHostKeyAlgorithms = defaultSshHostKeyAlgorithms
		sshTcpConnectTimeout = defaultSshTcpConnectTimeout
		docker = defaultDocker
	})
}
