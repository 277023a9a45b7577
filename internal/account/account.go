package account

import (
	"fmt"
	"strings"
)

// hostSuffix is stripped from (and re-appended to) account identifiers.
const hostSuffix = ".snowflakecomputing.com"

// Identity is a normalized Snowflake account.
type Identity struct {
	Identifier string // bare account identifier, e.g. "myorg-myaccount"
	URL        string // account host, e.g. "myorg-myaccount.snowflakecomputing.com"
}

// Normalize converts any accepted account spelling into a canonical Identity.
// Accepted inputs: bare identifier, account host, host:port, full URL with
// optional path. Normalize is idempotent — feeding Identifier back in yields
// the same Identity.
func Normalize(raw string) (Identity, error) {
	s := strings.TrimSpace(raw)

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "https://") {
		s = s[len("https://"):]
	} else if strings.HasPrefix(lower, "http://") {
		s = s[len("http://"):]
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}

	if len(s) >= len(hostSuffix) && strings.EqualFold(s[len(s)-len(hostSuffix):], hostSuffix) {
		s = s[:len(s)-len(hostSuffix)]
	}

	if s == "" {
		return Identity{}, fmt.Errorf("account: identifier %q is empty after normalization: provide the account name, for example myorg-myaccount or myorg-myaccount.snowflakecomputing.com", raw)
	}

	return Identity{Identifier: s, URL: s + hostSuffix}, nil
}
