package system

import (
	"context"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/logicmonitor/collector-agent/internal/domain"
)

// DetectPlatform reports the OS family and native pointer width of this host.
func DetectPlatform() domain.Platform {
	return domain.Platform{
		Kind: domain.ParsePlatformKind(runtime.GOOS),
		Arch: strconv.IntSize,
	}
}

// FQDN returns the fully-qualified name of this host, falling back to the
// short hostname when no resolver answers.
func FQDN(ctx context.Context) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	if strings.Contains(hostname, ".") {
		return hostname, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resolver := net.DefaultResolver
	if cname, err := resolver.LookupCNAME(ctx, hostname); err == nil {
		if name := strings.TrimSuffix(cname, "."); strings.Contains(name, ".") {
			return name, nil
		}
	}

	addrs, err := resolver.LookupHost(ctx, hostname)
	if err != nil {
		return hostname, nil
	}
	for _, addr := range addrs {
		names, err := resolver.LookupAddr(ctx, addr)
		if err != nil {
			continue
		}
		for _, name := range names {
			if name = strings.TrimSuffix(name, "."); strings.Contains(name, ".") {
				return name, nil
			}
		}
	}
	return hostname, nil
}
