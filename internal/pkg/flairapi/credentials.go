package flairapi

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
)

// Credentials are the OAuth client credentials issued by Flair for API access
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func hashOf(s string) string {
	if s == "" {
		return ""
	}

	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate the secret when stringified
//
func (c Credentials) String() string {
	return fmt.Sprintf("ClientID [%s], ClientSecret [%s]", c.ClientID, hashOf(c.ClientSecret))
}

// Valid reports whether both the client ID and secret are present
func (c Credentials) Valid() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
