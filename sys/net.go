package sys

import (
	"net"
	neturl "net/url"
	"strings"
)

// GetFreePort asks the kernel for a free open port that is ready to use.
func GetFreePort() (port int, err error) {
	var a *net.TCPAddr
	if a, err = net.ResolveTCPAddr("tcp", "localhost:0"); err == nil {
		var l *net.TCPListener
		if l, err = net.ListenTCP("tcp", a); err == nil {
			defer l.Close()
			return l.Addr().(*net.TCPAddr).Port, nil
		}
	}
	return
}

func hostOf(url string) string {
	if u, err := neturl.Parse(url); err == nil && u.Host != "" {
		return u.Hostname()
	}
	if h, _, err := net.SplitHostPort(url); err == nil {
		return h
	}
	return strings.Trim(url, "[]")
}

// IsLocalhost returns true if the input (URL or host[:port]) points to a
// loopback or unspecified address.
func IsLocalhost(url string) bool {
	host := hostOf(url)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

// IsSecureURL reports whether url is served over https to a non-local host,
// in which case cookies should carry the Secure attribute.
func IsSecureURL(url string) bool {
	u, err := neturl.Parse(url)
	if err != nil || !strings.EqualFold(u.Scheme, "https") {
		return false
	}
	return !IsLocalhost(url)
}
