package utils

import (
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid"
)

// SplitURLs splits a comma separated list of ICE server URLs, dropping blanks.
func SplitURLs(s string) []string {
	var urls []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}

// NewIdentity returns a fresh connection identity. Identities are random and
// never reused.
func NewIdentity() string {
	return uuid.NewString()
}

// NewShortID returns a url-safe id of length n, falling back to a uuid prefix
// if the random source fails.
func NewShortID(n int) string {
	id, err := gonanoid.ID(n)
	if err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
	}
	return id
}
