package objectstore

import (
	"strings"

	"google.golang.org/api/option"
)

func clientOptions(raw string) []option.ClientOption {
	creds := strings.TrimSpace(raw)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
