package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// rolePrefix is prepended to role names inside the authorities claim.
const rolePrefix = "ROLE_"

// ErrEmptyToken is returned when decoding an empty access token.
var ErrEmptyToken = errors.New("access token is empty")

// Identity is the user information carried by an access token.
type Identity struct {
	ID    string
	Email string
	Role  string
}

// Claims is the access token payload. Every field is optional; the API
// issues userId/role, but tokens minted elsewhere may only carry sub and
// an authorities list.
type Claims struct {
	UserID      subjectID     `json:"userId,omitempty"`
	Email       string        `json:"email,omitempty"`
	Role        string        `json:"role,omitempty"`
	Authorities authorityList `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

// Identity derives the user identity, preferring userId over sub and
// role over the first authority.
func (c *Claims) Identity() *Identity {
	id := string(c.UserID)
	if id == "" {
		id = c.Subject
	}

	role := c.Role
	if role == "" && len(c.Authorities) > 0 {
		role = strings.TrimPrefix(c.Authorities[0], rolePrefix)
	}

	return &Identity{
		ID:    id,
		Email: c.Email,
		Role:  role,
	}
}

// DecodeIdentity reads the identity from the token payload without
// verifying the signature. Verification belongs to the server.
func DecodeIdentity(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}

	return claims.Identity(), nil
}

// subjectID accepts both numeric and string ids.
type subjectID string

func (s *subjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = subjectID(v)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("userId must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*s = subjectID(strconv.FormatInt(i, 10))
		return nil
	}
	*s = subjectID(n.String())
	return nil
}

// authorityList accepts ["ROLE_X"] as well as [{"authority":"ROLE_X"}].
type authorityList []string

func (a *authorityList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("authorities must be a list: %w", err)
	}

	out := make(authorityList, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, name)
			continue
		}

		var obj struct {
			Authority string `json:"authority"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("unsupported authority entry %s: %w", string(item), err)
		}
		out = append(out, obj.Authority)
	}

	*a = out
	return nil
}
