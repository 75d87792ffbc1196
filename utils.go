package parallel

import (
	"fmt"
	"net/url"
	"strings"
)

const scheme = "cc://"

func ParseCCURI(escaped string) (string, string, error) {
	uriString, err := url.QueryUnescape(escaped)
	if err != nil {
		return "", "", fmt.Errorf("invalid uri encoding")
	}
	uri, err := url.Parse(uriString)
	if err != nil {
		return "", "", fmt.Errorf("invalid uri")
	}

	if uri.Scheme != "cc" {
		return "", "", fmt.Errorf("unsupported uri scheme")
	}

	owner := uri.Host
	path := uri.Path

	key := strings.TrimPrefix(path, "/")

	return owner, key, nil
}

func ComposeCCURI(owner, key string) string {
	u := &url.URL{
		Scheme: "cc",
		Host:   owner,
		Path:   key,
	}
	return u.String()
}

// ArchiveURL normalizes an archive reference. It accepts a bare owner id
// ("con1..."), an archive url ("cc://con1...") or any record url inside the
// archive, and returns the canonical archive url.
func ArchiveURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty archive reference")
	}

	if !strings.Contains(ref, "://") {
		if strings.ContainsAny(ref, "/?#") {
			return "", fmt.Errorf("invalid archive reference %q", ref)
		}
		return scheme + ref, nil
	}

	if !strings.HasPrefix(ref, scheme) {
		return "", fmt.Errorf("unsupported uri scheme in %q", ref)
	}

	owner := strings.TrimPrefix(ref, scheme)
	if i := strings.IndexAny(owner, "/?#"); i >= 0 {
		owner = owner[:i]
	}
	if owner == "" {
		return "", fmt.Errorf("invalid archive reference %q", ref)
	}
	return scheme + owner, nil
}

// Owner returns the owner id of an archive or record url.
func Owner(ref string) (string, error) {
	archive, err := ArchiveURL(ref)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(archive, scheme), nil
}

// RecordURL composes the url of a record stored in an archive. The key is
// used as is; callers escape keys that may contain '/'.
func RecordURL(archive, collection, key string) string {
	base := strings.TrimSuffix(archive, "/")
	if key == "" {
		return base + "/" + collection
	}
	return base + "/" + collection + "/" + key
}

// ParseRecordURL splits a record url into its archive url, collection and key.
func ParseRecordURL(recordURL string) (string, string, string, error) {
	if !strings.HasPrefix(recordURL, scheme) {
		return "", "", "", fmt.Errorf("invalid record url %q", recordURL)
	}

	parts := strings.SplitN(strings.TrimPrefix(recordURL, scheme), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid record url %q", recordURL)
	}

	key := ""
	if len(parts) == 3 {
		key = parts[2]
	}
	return scheme + parts[0], parts[1], key, nil
}

func hasChar(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}

func IsCCID(keyID string) bool {
	return len(keyID) == 42 && keyID[:3] == "con" && !hasChar(keyID, '.')
}

func IsCSID(keyID string) bool {
	return len(keyID) == 42 && keyID[:3] == "ccs" && !hasChar(keyID, '.')
}

func IsCKID(keyID string) bool {
	return len(keyID) == 42 && keyID[:3] == "cck" && !hasChar(keyID, '.')
}
