package util

import (
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// ActorURI derives the federation actor identifier for a local username.
func ActorURI(baseUrl string, username string) string {
	return fmt.Sprintf("%s/users/%s", strings.TrimSuffix(baseUrl, "/"), username)
}

// UsernameFromActor extracts the trailing username segment of an actor URI.
// Returns an empty string when the URI has no path segments.
func UsernameFromActor(actor string) string {
	actor = strings.TrimSuffix(actor, "/")
	idx := strings.LastIndex(actor, "/")
	if idx < 0 || idx == len(actor)-1 {
		return ""
	}
	return actor[idx+1:]
}

// LocalUsername resolves an actor URI to a local username if its base
// matches this node's own base url, otherwise returns false.
func LocalUsername(actor string, baseUrl string) (string, bool) {
	prefix := strings.TrimSuffix(baseUrl, "/") + "/users/"
	if !strings.HasPrefix(actor, prefix) {
		return "", false
	}
	username := strings.TrimSuffix(strings.TrimPrefix(actor, prefix), "/")
	if username == "" || strings.Contains(username, "/") {
		return "", false
	}
	return username, true
}

// OriginInstance returns the part of an actor URI preceding "/users/",
// i.e. the base url of the node that owns the actor.
func OriginInstance(actor string) string {
	if idx := strings.Index(actor, "/users/"); idx > 0 {
		return actor[:idx]
	}
	return actor
}

// RandomDigits returns a string of n random decimal digits, used for
// one-time password reset codes.
func RandomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(err)
		}
		b.WriteString(v.String())
	}
	return b.String()
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", "\t")
	return string(s)
}
