package domain

// PublishRequest is what the social publish collaborator receives.
type PublishRequest struct {
	Files    []string
	Caption  string
	Location string
}

// PublishResult carries optional diagnostics of a publish attempt.
type PublishResult struct {
	// DebugArtifact is a screenshot or log file captured by the collaborator on failure.
	DebugArtifact string
}
