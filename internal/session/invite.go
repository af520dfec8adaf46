package session

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidInvite is returned when an invite link carries no usable
// session id.
var ErrInvalidInvite = errors.New("invalid invite link")

// ParseInvite extracts the session id from an invite. Accepts a bare
// session id or any URL whose path ends in /join/<id>.
func ParseInvite(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", ErrInvalidInvite
	}

	if !strings.Contains(link, "://") {
		if validSessionID(link) {
			return link, nil
		}
		return "", ErrInvalidInvite
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", ErrInvalidInvite
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 2; i >= 0; i-- {
		if segments[i] == "join" && validSessionID(segments[i+1]) {
			return segments[i+1], nil
		}
	}
	return "", ErrInvalidInvite
}

func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
