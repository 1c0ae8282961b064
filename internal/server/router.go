// Package server evaluates routing requests: payload validation, target
// authorization against the sender's grants, and resolution of the single
// destination group.
package server

import (
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/samber/lo"
)

// MaxMessageChars caps the decoded length of a relayed message body.
const MaxMessageChars = 500

// Routing rejections. Each one drops the offending request only; the
// connection stays open.
var (
	ErrInvalidPayload      = errors.New("invalid message payload")
	ErrNoTarget            = errors.New("no resolvable target")
	ErrChannelForbidden    = errors.New("channel not granted to sender")
	ErrDepartmentForbidden = errors.New("department not granted to sender")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// RoutingRequest asks the router to deliver one message. At most one target
// is expected to resolve; a privileged sender may omit all targets to reach
// the whole tenant.
type RoutingRequest struct {
	TargetUserID       int64
	TargetChannelID    int64
	TargetDepartmentID int64
	Message            string
}

// UnmarshalJSON accepts both the legacy Portuguese field names and their
// English aliases, taking the first present spelling of each target.
func (r *RoutingRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		ToUserID         *int64 `json:"to_user_id"`
		ToCanalID        *int64 `json:"to_canal_id"`
		ToChannelID      *int64 `json:"to_channel_id"`
		ToDepartamentoID *int64 `json:"to_departamento_id"`
		ToDepartmentID   *int64 `json:"to_department_id"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.TargetUserID = lo.FromPtr(raw.ToUserID)
	r.TargetChannelID = lo.FromPtr(lo.CoalesceOrEmpty(raw.ToCanalID, raw.ToChannelID))
	r.TargetDepartmentID = lo.FromPtr(lo.CoalesceOrEmpty(raw.ToDepartamentoID, raw.ToDepartmentID))
	r.Message = raw.Message
	return nil
}

// Route validates the request against the sender's identity and resolves the
// destination group. Checks run in a fixed order and the first failure wins:
// payload shape, target presence, channel grant, department grant. Target
// priority is fixed as user, then channel, then department, then the
// tenant-wide broadcast reserved for privileged senders.
func Route(sender *Identity, req *RoutingRequest) (string, error) {
	if req.Message == "" || utf8.RuneCountInString(req.Message) > MaxMessageChars {
		return "", ErrInvalidPayload
	}

	hasTarget := req.TargetUserID > 0 || req.TargetChannelID > 0 || req.TargetDepartmentID > 0
	if !hasTarget && !sender.Privileged() {
		return "", ErrNoTarget
	}

	if req.TargetChannelID > 0 && !sender.HasChannel(req.TargetChannelID) && !sender.Privileged() {
		return "", ErrChannelForbidden
	}

	if req.TargetDepartmentID > 0 && !sender.HasDepartment(req.TargetDepartmentID) && !sender.Privileged() {
		return "", ErrDepartmentForbidden
	}

	switch {
	case req.TargetUserID > 0:
		return UserGroup(sender.Tenant, req.TargetUserID), nil
	case req.TargetChannelID > 0:
		return ChannelGroup(sender.Tenant, req.TargetChannelID), nil
	case req.TargetDepartmentID > 0:
		return DepartmentGroup(sender.Tenant, req.TargetDepartmentID), nil
	case sender.Privileged():
		return TenantGroup(sender.Tenant), nil
	}
	return "", ErrNoTarget
}

// dropReason maps a rejection to its audit label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid-payload"
	case errors.Is(err, ErrNoTarget):
		return "no-target"
	case errors.Is(err, ErrChannelForbidden):
		return "channel-unauthorized"
	case errors.Is(err, ErrDepartmentForbidden):
		return "department-unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate-limit-exceeded"
	default:
		return "unknown"
	}
}

// rejectReason maps an authentication failure to its audit label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoCredential):
		return "no-credential"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid-credential"
	case errors.Is(err, ErrTenantMissing):
		return "tenant-missing"
	case errors.Is(err, ErrSubjectMissing):
		return "subject-missing"
	default:
		return "unknown"
	}
}
