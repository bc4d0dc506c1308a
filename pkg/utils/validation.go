// Package utils provides validation and token helpers shared by the overlay client.
// It covers advertisement URIs (BRC-101), topic and service names (BRC-87) and the
// signature linkage check applied to SHIP and SLAP tokens.
package utils

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Static error variables for err113 compliance
var (
	ErrInsecureHostURL   = errors.New("host URL must use https")
	ErrInvalidHostURL    = errors.New("invalid host URL")
	ErrNotAdvertisable   = errors.New("URI is not advertisable")
	errUnknownScheme     = errors.New("unrecognized scheme")
	errLocalhost         = errors.New("localhost cannot be advertised")
	errMissingHost       = errors.New("missing host")
	errPathNotAllowed    = errors.New("only the root path may be advertised")
	errMissingParameter  = errors.New("missing parameter")
	errParameterRange    = errors.New("parameter out of range")
	errNotPositiveNumber = errors.New("parameter must be a positive number")
)

const maxNameLength = 50

var (
	// BRC-87: tm_ or ls_, then lowercase words joined by single underscores.
	topicServiceNameRegex = regexp.MustCompile(`^(?:tm_|ls_)[a-z]+(?:_[a-z]+)*$`)

	leadingNumberRegex = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

type schemeRule struct {
	prefix string
	check  func(uri string) error
}

// advertisableSchemes lists the BRC-101 scheme prefixes and their checks.
var advertisableSchemes = []schemeRule{
	{"https://", hostOnly("https://")},
	// auth only, no payment
	{"https+bsvauth://", hostOnly("https+bsvauth://")},
	// auth and payment
	{"https+bsvauth+smf://", hostOnly("https+bsvauth+smf://")},
	// sCrypt off-chain values reach the admissibility check
	{"https+bsvauth+scrypt-offchain://", hostOnly("https+bsvauth+scrypt-offchain://")},
	// real-time (non-final) transactions
	{"https+rtt://", hostOnly("https+rtt://")},
	// streaming lookups
	{"wss://", checkWSS},
	{"js8c+bsvauth+smf:", checkJS8Call},
}

// IsAdvertisableURI reports whether uri may appear as the domain of a SHIP or SLAP
// advertisement. See ValidateAdvertisableURI for the rules.
func IsAdvertisableURI(uri string) bool {
	return ValidateAdvertisableURI(uri) == nil
}

// ValidateAdvertisableURI applies the BRC-101 scheme rules to uri and explains a rejection.
//
// Supported schemes:
//   - https://, https+bsvauth://, https+bsvauth+smf://, https+bsvauth+scrypt-offchain:// and
//     https+rtt://: a non-localhost host with at most the root path
//   - wss://: a non-localhost host
//   - js8c+bsvauth+smf: requires lat, long, freq and radius query parameters
//
// Returns an error wrapping ErrNotAdvertisable, or nil.
func ValidateAdvertisableURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("%w: empty URI", ErrNotAdvertisable)
	}
	for _, rule := range advertisableSchemes {
		if !strings.HasPrefix(uri, rule.prefix) {
			continue
		}
		if err := rule.check(uri); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrNotAdvertisable, uri, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q: %w", ErrNotAdvertisable, uri, errUnknownScheme)
}

// hostOnly validates an https-like URI by parsing it with its scheme swapped for https.
func hostOnly(prefix string) func(string) error {
	return func(uri string) error {
		u, err := url.Parse("https://" + strings.TrimPrefix(uri, prefix))
		if err != nil {
			return err
		}
		if isLocalhost(u) {
			return errLocalhost
		}
		if u.Host == "" {
			return errMissingHost
		}
		if u.Path != "/" && u.Path != "" {
			return errPathNotAllowed
		}
		return nil
	}
}

func checkWSS(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return err
	}
	if isLocalhost(u) {
		return errLocalhost
	}
	return nil
}

// Hostname drops any port.
func isLocalhost(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), "localhost")
}

// checkJS8Call accepts any positive frequency and radius, with or without units.
func checkJS8Call(uri string) error {
	_, rawQuery, found := strings.Cut(uri, "?")
	if !found {
		return fmt.Errorf("%w: query string", errMissingParameter)
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return err
	}
	for _, p := range []string{"lat", "long", "freq", "radius"} {
		if values.Get(p) == "" {
			return fmt.Errorf("%w: %s", errMissingParameter, p)
		}
	}

	if err := inRange("lat", values.Get("lat"), 90); err != nil {
		return err
	}
	if err := inRange("long", values.Get("long"), 180); err != nil {
		return err
	}
	if err := positiveLeadingNumber("freq", values.Get("freq")); err != nil {
		return err
	}
	return positiveLeadingNumber("radius", values.Get("radius"))
}

func inRange(name, raw string, limit float64) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < -limit || v > limit {
		return fmt.Errorf("%w: %s=%s", errParameterRange, name, raw)
	}
	return nil
}

// positiveLeadingNumber reads the first number in raw, so "7.078MHz" is 7.078.
func positiveLeadingNumber(name, raw string) error {
	if strings.HasPrefix(strings.TrimSpace(raw), "-") {
		return fmt.Errorf("%w: %s=%s", errNotPositiveNumber, name, raw)
	}
	m := leadingNumberRegex.FindStringSubmatch(raw)
	if len(m) < 2 {
		return fmt.Errorf("%w: %s=%s", errNotPositiveNumber, name, raw)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("%w: %s=%s", errNotPositiveNumber, name, raw)
	}
	return nil
}

// IsValidTopicOrServiceName checks a name against BRC-87: at most 50 characters, a tm_
// (topic) or ls_ (lookup service) prefix, then lowercase letters in groups separated by
// single underscores.
//
// Examples:
//   - Valid: "tm_payments", "ls_identity_verification", "tm_chat_messages"
//   - Invalid: "payments", "TM_payments", "tm_", "tm__double", "tm_payments_"
func IsValidTopicOrServiceName(name string) bool {
	if len(name) > maxNameLength {
		return false
	}
	return topicServiceNameRegex.MatchString(name)
}

// IsTopicName reports whether name is addressed to a topic manager.
func IsTopicName(name string) bool {
	return strings.HasPrefix(name, "tm_")
}

// CheckHostURL parses a host URL and makes sure it can be contacted. Plain http is accepted
// only when allowHTTP is set, which is how local development hosts are reached.
func CheckHostURL(raw string, allowHTTP bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHostURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidHostURL, raw)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !allowHTTP {
			return nil, fmt.Errorf("%w: %s", ErrInsecureHostURL, raw)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInsecureHostURL, u.Scheme)
	}
	return u, nil
}
