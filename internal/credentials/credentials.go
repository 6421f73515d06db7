// Package credentials resolves the account credentials sent with every RPC call.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials authenticate against the inventory service.
type Credentials struct {
	Company string
	User    string
	Secret  string
}

// Validate reports the first missing field.
func (c Credentials) Validate() error {
	switch {
	case c.Company == "":
		return errors.New("credentials: company is required")
	case c.User == "":
		return errors.New("credentials: user is required")
	case c.Secret == "":
		return errors.New("credentials: password is required")
	}
	return nil
}

var aliases = map[string][]string{
	"company":  {"c", "company"},
	"user":     {"u", "user", "username"},
	"password": {"p", "password", "secret"},
}

// IsKey reports whether key names a credential field.
func IsKey(key string) bool {
	for _, keys := range aliases {
		for _, k := range keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

// LoadFile reads a key=value credentials file. Both the short RPC keys
// (c, u, p) and the long names are accepted.
func LoadFile(path string) (Credentials, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	return FromMap(values), nil
}

// FromMap picks credentials out of a key/value mapping.
func FromMap(values map[string]string) Credentials {
	pick := func(field string) string {
		for _, key := range aliases[field] {
			if v := strings.TrimSpace(values[key]); v != "" {
				return v
			}
		}
		return ""
	}
	return Credentials{
		Company: pick("company"),
		User:    pick("user"),
		Secret:  pick("password"),
	}
}

// Resolve merges explicit values with the credentials file. Explicit values
// win; the file is only read when something is missing and it exists.
func Resolve(explicit Credentials, file string) (Credentials, error) {
	if explicit.Validate() == nil || file == "" {
		return explicit, explicit.Validate()
	}
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return explicit, explicit.Validate()
	}

	fromFile, err := LoadFile(file)
	if err != nil {
		return Credentials{}, err
	}
	merged := explicit
	if merged.Company == "" {
		merged.Company = fromFile.Company
	}
	if merged.User == "" {
		merged.User = fromFile.User
	}
	if merged.Secret == "" {
		merged.Secret = fromFile.Secret
	}
	return merged, merged.Validate()
}
