package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// SessionIDHeader carries the anonymous session id
const SessionIDHeader = "X-Session-ID"

// maxSessionBodyBytes bounds how much of a JSON body is buffered to look for session_id
const maxSessionBodyBytes = 1 << 20

// MaxSessionIDLength bounds a client-supplied session id
const MaxSessionIDLength = 128

// sessionIDPattern accepts UUIDs and similar opaque tokens
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// ValidSessionID reports whether id has the shape of a session id: a
// printable token with no surrounding whitespace, at most MaxSessionIDLength
// bytes long.
func ValidSessionID(id string) bool {
	return len(id) <= MaxSessionIDLength && sessionIDPattern.MatchString(id)
}

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP returns the client address used for audit logging.
//
// Precedence: X-Forwarded-For (first valid entry), X-Real-IP, RemoteAddr,
// then "unknown". When TrustedProxies is configured, forwarding headers are
// honoured only if RemoteAddr falls inside one of the ranges.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if headersTrusted(remoteIP, config) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
			return xri
		}
	}

	return remoteIP
}

func headersTrusted(remoteIP string, config *IPConfig) bool {
	if config == nil || len(config.TrustedProxies) == 0 {
		return true
	}
	return isTrustedProxy(remoteIP, config.TrustedProxies)
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

// isValidIP checks if a string is a valid IPv4 or IPv6 address
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// ExtractSessionID returns the anonymous session id from the X-Session-ID
// header, falling back to a "session_id" field in a JSON body. The body is
// always handed back intact so downstream handlers can still decode it. A
// body larger than maxSessionBodyBytes is not inspected.
func ExtractSessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionIDHeader)); id != "" {
		return id
	}

	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSessionBodyBytes+1))
	r.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(raw), r.Body),
		Closer: r.Body,
	}
	if err != nil || len(raw) > maxSessionBodyBytes {
		return ""
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.SessionID)
}

// replayBody serves the inspected prefix followed by the unread remainder
// and closes the original body
type replayBody struct {
	io.Reader
	io.Closer
}
