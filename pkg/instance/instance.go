package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

var idEnvVars = []string{"MIVAHUB_INSTANCE_ID", "HOSTNAME"}

// ID returns the process instance identifier attached to service logs.
func ID() string {
	for _, key := range idEnvVars {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return fallbackID
}
