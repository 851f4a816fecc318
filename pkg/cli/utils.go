package cli

import (
	"fmt"
	"net"
	"strings"

	"github.com/urfave/cli/v3"
)

func joinFlags(flags ...[]cli.Flag) []cli.Flag {
	var result []cli.Flag
	for _, flag := range flags {
		result = append(result, flag...)
	}
	return result
}

// listenURL generates a browsable URL from the listen address
func listenURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// Port only format (e.g., ":8080")
		if strings.HasPrefix(addr, ":") {
			return fmt.Sprintf("http://localhost%s", addr)
		}
		return fmt.Sprintf("http://%s", addr)
	}

	// If host is empty, "0.0.0.0", or "::" (unspecified IPv6), replace with localhost.
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
}
