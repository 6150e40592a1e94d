package constants

const (
	ViewData          = "view_data"
	SubmitProject     = "submit_project"
	CastVote          = "cast_vote"
	TransitionProject = "transition_project"
	ArchiveProject    = "archive_project"
	ViewAuditTrail    = "view_audit_trail"
	AssignRole        = "assign_role"
)
