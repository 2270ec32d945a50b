// Package gcp resolves shared Google Cloud client options.
package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions resolves credentials for the Google Cloud clients. An
// explicit credentials file from config wins; otherwise the standard
// environment variables are consulted. GOOGLE_APPLICATION_CREDENTIALS_JSON
// may carry the key material inline.
func ClientOptions(credentialsFile string) []option.ClientOption {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		return append(opts, option.WithCredentialsFile(credentialsFile))
	}

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		return append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	return append(opts, option.WithCredentialsFile(creds))
}
