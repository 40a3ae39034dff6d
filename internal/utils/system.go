package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var (
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._\-]+`)
	repeatedUnder   = regexp.MustCompile(`_+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	user, err := user.Current()
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return hostname, nil
}

// SanitizeFileComponent turns an arbitrary string, such as an identity,
// into something safe to use as a single path element. Case is kept so
// identities differing only in case map to different files.
func SanitizeFileComponent(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = repeatedUnder.ReplaceAllString(name, "_")

	// Leading dots would make the file hidden or turn it into "..".
	name = strings.TrimLeft(name, "._")
	name = strings.TrimRight(name, "_")

	if name == "" {
		name = "default"
	}
	return name
}

// DefaultIdentity suggests an identity of the form user@host. If the
// hostname is unavailable the username alone is used.
func DefaultIdentity() (string, error) {
	username, err := GetUsername()
	if err != nil {
		return "", err
	}
	username = SanitizeFileComponent(username)

	hostname, err := GetHostname()
	if err != nil || hostname == "" {
		return username, nil
	}
	return username + "@" + SanitizeFileComponent(hostname), nil
}
