package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment of the authorization server
const EnvVar = "CODEGRANT_ENV"

// IsDev reports whether CODEGRANT_ENV marks a development run, where
// cookies are sent without the Secure attribute so plain-http localhost works
func IsDev() bool {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "development", "dev", "local":
		return true
	}
	return false
}
