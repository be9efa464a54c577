package domain

import "github.com/postdeskhq/postdesk/internal/access"

// TransitionAction names a lifecycle trigger. The table below is the single
// authority on which role may move a post between which states; call sites
// never compare role strings themselves.
type TransitionAction string

const (
	ActionSendForApproval TransitionAction = "send_for_approval"
	ActionApprove         TransitionAction = "approve"
	ActionRequestChanges  TransitionAction = "request_changes"
	ActionSchedule        TransitionAction = "schedule"
	ActionPublish         TransitionAction = "publish"
	ActionArchive         TransitionAction = "archive"
)

type transition struct {
	from PostStatus
	to   PostStatus
	role string
}

var transitions = map[TransitionAction][]transition{
	ActionSendForApproval: {
		{from: StatusDraft, to: StatusPendingClient, role: access.RoleAgency},
		{from: StatusChangesRequested, to: StatusPendingClient, role: access.RoleAgency},
	},
	ActionApprove: {
		{from: StatusPendingClient, to: StatusApproved, role: access.RoleClient},
	},
	ActionRequestChanges: {
		{from: StatusPendingClient, to: StatusChangesRequested, role: access.RoleClient},
	},
	ActionSchedule: {
		{from: StatusApproved, to: StatusScheduled, role: access.RoleAgency},
	},
	ActionPublish: {
		{from: StatusScheduled, to: StatusPublished, role: access.ActorSystem},
		{from: StatusApproved, to: StatusPublished, role: access.ActorSystem},
	},
	ActionArchive: {
		{from: StatusDraft, to: StatusArchived, role: access.RoleAgency},
		{from: StatusPendingClient, to: StatusArchived, role: access.RoleAgency},
		{from: StatusChangesRequested, to: StatusArchived, role: access.RoleAgency},
		{from: StatusApproved, to: StatusArchived, role: access.RoleAgency},
		{from: StatusScheduled, to: StatusArchived, role: access.RoleAgency},
		{from: StatusPublished, to: StatusArchived, role: access.RoleAgency},
	},
}

// ResolveTransition returns the target status for action applied to from by
// role. agency_admin acts with agency authority. The second return is false
// when the table has no matching row.
func ResolveTransition(action TransitionAction, from PostStatus, role string) (PostStatus, bool) {
	if role == access.RoleAgencyAdmin {
		role = access.RoleAgency
	}
	for _, t := range transitions[action] {
		if t.from == from && t.role == role {
			return t.to, true
		}
	}
	return "", false
}

// SourceStatuses lists every state the action may legally start from,
// regardless of role. Used to build status-guarded updates.
func SourceStatuses(action TransitionAction) []PostStatus {
	seen := map[PostStatus]bool{}
	var out []PostStatus
	for _, t := range transitions[action] {
		if !seen[t.from] {
			seen[t.from] = true
			out = append(out, t.from)
		}
	}
	return out
}
