// Package auth resolves the oracle API credential.
package auth

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvKey is the environment variable consulted when no explicit key is given.
const EnvKey = "ORACLE_KEY"

// ErrMissingKey means no credential was supplied on the command line or in
// the environment.
var ErrMissingKey = errors.New("auth: no API key provided (flag -key or " + EnvKey + ")")

// LoadDotenv pulls a .env file from the working directory into the process
// environment. A missing file is not an error; already-set variables win.
func LoadDotenv() {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Warn().Err(err).Msg("could not load .env file")
	}
}

// ResolveKey returns the credential to authenticate with: the explicit value
// when non-empty, otherwise the environment.
func ResolveKey(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if key := os.Getenv(EnvKey); key != "" {
		return key, nil
	}
	return "", ErrMissingKey
}
