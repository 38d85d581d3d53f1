// Package download resolves a video URL to a local file and derives its canonical source ID.
package download

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrEmptyURL is returned for blank input.
var ErrEmptyURL = errors.New("url is required")

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// SourceID derives the canonical job key for a URL or local path. YouTube URLs map to their
// 11-character video ID; other URLs to url-<hash>; local paths to file-<hash>.
func SourceID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if youtubeIDPattern.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Scheme == "file" || len(u.Scheme) == 1 {
		path := raw
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		if abs, absErr := filepath.Abs(path); absErr == nil {
			path = abs
		}
		return "file-" + shortHash(path), nil
	}

	if id, ok := YouTubeID(u); ok {
		return id, nil
	}
	return "url-" + shortHash(canonicalURL(u)), nil
}

// YouTubeID extracts the video ID from watch, youtu.be, shorts, embed and live URLs.
func YouTubeID(u *url.URL) (string, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				candidate = parts[1]
			}
		}
	default:
		return "", false
	}

	if youtubeIDPattern.MatchString(candidate) {
		return candidate, true
	}
	return "", false
}

// IsYouTube reports whether raw points at a YouTube video.
func IsYouTube(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	_, ok := YouTubeID(u)
	return ok
}

func canonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	return c.String()
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
