package models

import "time"

// ArtifactVersion is one immutable, numbered snapshot of an artifact's content.
// Version numbers for a given artifact form the contiguous sequence 1..N.
type ArtifactVersion struct {
	ID            string                 `json:"id"`
	ArtifactID    string                 `json:"artifact_id"`
	VersionNumber int                    `json:"version_number"`
	Content       string                 `json:"content"`
	Description   string                 `json:"description,omitempty"`
	CreatedBy     string                 `json:"created_by,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Artifact is a named, versioned unit of content owned by a project.
// Versions are stored as full records in creation order; CurrentVersionID
// always points at the most recently created version, or is empty when no
// version exists yet.
type Artifact struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`

	Versions         []ArtifactVersion `json:"versions"`
	CurrentVersionID string            `json:"current_version_id,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the artifact and its version chain.
func (a *Artifact) Clone() *Artifact {
	cp := *a
	cp.Versions = make([]ArtifactVersion, len(a.Versions))
	for i, v := range a.Versions {
		cp.Versions[i] = v
		cp.Versions[i].Metadata = cloneMap(v.Metadata)
	}
	cp.Metadata = cloneMap(a.Metadata)
	return &cp
}
