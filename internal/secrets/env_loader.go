package secrets

import (
	"os"
	"strings"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing or blank variables are omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
