// Package server verifies connection credentials and derives the trusted
// identity a session carries for its whole lifetime.
package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
)

// RoleAdmin bypasses per-target authorization and enables tenant-wide broadcast.
const RoleAdmin = "admin"

const defaultRole = "user"

// Authentication failures. Any of these refuses the connection attempt.
var (
	ErrNoCredential      = errors.New("no credential presented")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrTenantMissing     = errors.New("tenant claim missing")
	ErrSubjectMissing    = errors.New("subject claim missing")
)

// Identity holds the verified attributes of a connection's owner. It is
// constructed once at handshake time and never mutated afterwards.
type Identity struct {
	UserID        int64
	Tenant        string
	Role          string
	ChannelIDs    map[int64]struct{}
	DepartmentIDs map[int64]struct{}
	OperatorID    int64 // 0 when absent
}

// Privileged reports whether the identity holds the admin role.
func (id *Identity) Privileged() bool {
	return id.Role == RoleAdmin
}

// HasChannel reports whether the identity was granted the given channel.
func (id *Identity) HasChannel(channelID int64) bool {
	_, ok := id.ChannelIDs[channelID]
	return ok
}

// HasDepartment reports whether the identity was granted the given department.
func (id *Identity) HasDepartment(departmentID int64) bool {
	_, ok := id.DepartmentIDs[departmentID]
	return ok
}

// VerifyToken validates the signature and expiry of a bearer token and
// extracts the Identity it asserts. Verification failures collapse into
// ErrInvalidCredential so verifier internals never leak to the caller;
// structurally valid tokens can still fail on missing tenant or subject.
func VerifyToken(raw string, secret []byte) (*Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoCredential
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}

	tenant := NormalizeTenant(claimString(claims, "tenant", "domain"))
	if tenant == "" {
		return nil, ErrTenantMissing
	}

	userID, ok := claimInt(claims, "sub")
	if !ok || userID <= 0 {
		return nil, ErrSubjectMissing
	}

	role := claimString(claims, "role")
	if role == "" {
		role = defaultRole
	}

	operatorID, _ := claimInt(claims, "operador_id", "operatorId")
	if operatorID < 0 {
		operatorID = 0
	}

	return &Identity{
		UserID:        userID,
		Tenant:        tenant,
		Role:          role,
		ChannelIDs:    claimIDSet(claims, "canais", "channelIds"),
		DepartmentIDs: claimIDSet(claims, "departamentos", "departmentIds"),
		OperatorID:    operatorID,
	}, nil
}

// NormalizeTenant canonicalizes a raw domain claim: trimmed, case-folded,
// leading "www." stripped. Returns "" when nothing usable remains.
func NormalizeTenant(raw string) string {
	tenant := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(tenant, "www.")
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if s, ok := claims[key].(string); ok {
			return s
		}
	}
	return ""
}

// claimInt reads an integer claim that may arrive as a JSON number or a
// numeric string. Returns false when no key holds a well-formed integer.
func claimInt(claims jwt.MapClaims, keys ...string) (int64, bool) {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case float64:
			if v == math.Trunc(v) {
				return int64(v), true
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// claimIDSet reads an integer-array claim. A claim that is not a well-formed
// array of positive integers yields the empty set: malformed input is never
// partially trusted.
func claimIDSet(claims jwt.MapClaims, keys ...string) map[int64]struct{} {
	for _, key := range keys {
		raw, present := claims[key]
		if !present {
			continue
		}

		values, ok := raw.([]any)
		if !ok {
			return map[int64]struct{}{}
		}

		ids := lo.FilterMap(values, func(v any, _ int) (int64, bool) {
			f, isNum := v.(float64)
			if !isNum || f != math.Trunc(f) || f <= 0 {
				return 0, false
			}
			return int64(f), true
		})
		if len(ids) != len(values) {
			return map[int64]struct{}{}
		}

		return lo.SliceToMap(ids, func(id int64) (int64, struct{}) {
			return id, struct{}{}
		})
	}
	return map[int64]struct{}{}
}
