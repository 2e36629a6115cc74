// Package origin normalizes browser Origin headers and decides whether a
// cross-origin request may use the API or open a websocket.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port]) and the host[:port]
// portion for same-host comparisons.
//
// The special Origin value "null" is allowed and returned as-is.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	hostname, port, ok := parseAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}

	host = formatHost(hostname, port)
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether the normalized origin may access the given
// request host.
//
// If allowedOrigins is non-empty, each entry must be either "*" or a
// normalized origin string (as produced by NormalizeHeader). Otherwise the
// default policy is same-host only, with default ports treated as equivalent.
func IsAllowed(normalizedOrigin, originHost, requestHost string, allowedOrigins []string) bool {
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	// Scheme is intentionally not compared: behind a TLS-terminating reverse
	// proxy the server sees HTTP while the browser Origin is HTTPS.
	scheme := ""
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		// "null" cannot match a host-based request.
		return false
	}

	hostname, port, ok := parseAuthority(strings.TrimSpace(requestHost), scheme)
	if !ok {
		return false
	}
	return originHost == formatHost(hostname, port)
}

// parseAuthority splits host[:port], validates the port and drops it when it
// is the scheme's default. IPv6 literals are returned without brackets.
func parseAuthority(rawHost, scheme string) (hostname string, port uint64, ok bool) {
	rawHostname, rawPort, ok := splitHostPort(rawHost)
	if !ok {
		return "", 0, false
	}
	hostname = strings.ToLower(rawHostname)
	if hostname == "" {
		return "", 0, false
	}
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", 0, false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}
	return hostname, port, true
}

func formatHost(hostname string, port uint64) string {
	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = host + ":" + strconv.FormatUint(port, 10)
	}
	return host
}

func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}
	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") {
			return "", "", false
		}
		return hostname, rest[1:], true
	}
	if i := strings.LastIndexByte(rawHost, ':'); i >= 0 {
		if strings.IndexByte(rawHost[:i], ':') >= 0 {
			// Unbracketed IPv6 literal.
			return "", "", false
		}
		return rawHost[:i], rawHost[i+1:], true
	}
	return rawHost, "", true
}
