// Package urlx canonicalizes user-supplied website URLs into a stable
// origin + registrable-domain identity used for deduplication.
package urlx

import (
	"net"
	"net/url"
	"strings"
)

// Reason identifies the single validation rule an input failed.
type Reason string

const (
	ReasonTooLong               Reason = "TooLong"
	ReasonHasWhitespace         Reason = "HasWhitespace"
	ReasonUnparsable            Reason = "Unparsable"
	ReasonUnsupportedScheme     Reason = "UnsupportedScheme"
	ReasonPrivateOrLocalAddress Reason = "PrivateOrLocalAddress"
	ReasonPlaceholderDomain     Reason = "PlaceholderDomain"
	ReasonInvalidDomain         Reason = "InvalidDomain"
)

// NormalizedURL is the outcome of one validation call. Immutable once
// produced; never persisted.
type NormalizedURL struct {
	OK               bool
	Reason           Reason
	NormalizedOrigin string
	RequestedURL     string
	OriginalPath     string
	ETLD1            string
}

const maxInputLength = 2000

// placeholderHosts are domains reserved for documentation and testing.
var placeholderHosts = map[string]bool{
	"example.com": true,
	"example.org": true,
	"example.net": true,
	"test.com":    true,
	"test.org":    true,
	"test.net":    true,
	"local":       true,
}

// twoPartSuffixes are public suffixes made of two labels; checked by
// longest match before the last-two-labels fallback.
var twoPartSuffixes = map[string]bool{
	"co.uk":  true,
	"org.uk": true,
	"ac.uk":  true,
	"gov.uk": true,
	"me.uk":  true,
	"com.au": true,
	"net.au": true,
	"org.au": true,
	"com.br": true,
	"net.br": true,
	"org.br": true,
	"co.jp":  true,
	"or.jp":  true,
	"ne.jp":  true,
	"co.kr":  true,
	"co.in":  true,
	"net.in": true,
	"org.in": true,
	"co.nz":  true,
	"com.mx": true,
	"com.ar": true,
	"com.cn": true,
	"com.tw": true,
	"com.sg": true,
	"com.hk": true,
	"co.za":  true,
	"com.tr": true,
}

var privateBlocks = []*net.IPNet{
	mustCIDR("127.0.0.0/8"),
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
	mustCIDR("::1/128"),
}

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}

func reject(input string, reason Reason) NormalizedURL {
	return NormalizedURL{RequestedURL: input, Reason: reason}
}

// Normalize canonicalizes and validates a raw user string. It is a pure
// function: identical input always yields an identical result and no
// network access happens.
func Normalize(input string) NormalizedURL {
	if len(input) > maxInputLength {
		return reject(input, ReasonTooLong)
	}
	if strings.ContainsAny(input, " \t\n\r") {
		return reject(input, ReasonHasWhitespace)
	}

	raw := input
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return reject(input, ReasonUnparsable)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return reject(input, ReasonUnsupportedScheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if isPrivateOrLocal(host) {
		return reject(input, ReasonPrivateOrLocalAddress)
	}
	if placeholderHosts[host] {
		return reject(input, ReasonPlaceholderDomain)
	}
	if !strings.Contains(host, ".") {
		return reject(input, ReasonInvalidDomain)
	}

	origin := scheme + "://" + host
	if port := parsed.Port(); port != "" && !isDefaultPort(scheme, port) {
		origin += ":" + port
	}
	origin += "/"

	result := NormalizedURL{
		OK:               true,
		NormalizedOrigin: origin,
		RequestedURL:     input,
		ETLD1:            ETLD1(host),
	}

	if path := nonRootPath(parsed); path != "" {
		result.OriginalPath = path
	}

	return result
}

// ETLD1 extracts the registrable domain from a lower-cased hostname:
// longest match against the two-part suffix table, then last two labels.
func ETLD1(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if twoPartSuffixes[lastTwo] {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

func isPrivateOrLocal(host string) bool {
	if host == "localhost" || host == "0.0.0.0" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func nonRootPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" || path == "/" {
		path = ""
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		path += "#" + u.Fragment
	}
	return path
}
