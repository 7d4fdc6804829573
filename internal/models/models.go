package models

import "time"

// ProjectStatus is either a stage name (the stage the project is in) or a
// terminal marker. It only moves forward through the stage order, or into
// failed; regression requires an explicit reset that bumps the generation.
type ProjectStatus string

const (
	StatusNew       ProjectStatus = "new"
	StatusPublished ProjectStatus = "published"
	StatusFailed    ProjectStatus = "failed"
)

// StageStatus converts a stage into the project status used while the
// project sits in that stage.
func StageStatus(s Stage) ProjectStatus { return ProjectStatus(s) }

// Terminal reports whether no further stages will run for the current
// generation.
func (s ProjectStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// Project is the aggregate root.
type Project struct {
	ID         string
	Name       string
	Status     ProjectStatus
	Generation uint64
	Config     string // free-form JSON, opaque to the pipeline
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FileStatus tracks a source file through the parse stage.
type FileStatus string

const (
	FilePending FileStatus = "pending"
	FileParsed  FileStatus = "parsed"
	FileFailed  FileStatus = "failed"
)

// SourceFile is one uploaded file, stored in object storage under ObjectKey.
type SourceFile struct {
	ID           string
	ProjectID    string
	ObjectKey    string
	Filename     string
	MimeType     string
	Size         int64
	Status       FileStatus
	ErrorMessage string
	CreatedAt    time.Time
}

// ContentType classifies an analyzable unit.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentClip  ContentType = "clip"
)

// ContentItem is one analyzable unit derived from a source file. The natural
// key is (FileID, Position): redelivered parse messages upsert instead of
// duplicating rows.
type ContentItem struct {
	ID         string
	ProjectID  string
	FileID     string
	Position   int
	Type       ContentType
	Text       string
	Metadata   string // JSON extracted by the parser, opaque downstream
	Summary    string
	Keywords   string // comma-joined, set by analyze
	IsSelected bool
	ChapterID  string // empty until curated
	SortOrder  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chapter is an ordered grouping of selected content items. The natural key
// is (ProjectID, Position).
type Chapter struct {
	ID        string
	ProjectID string
	Position  int
	Title     string
	Intro     string // generated intro text, set by write
	CreatedAt time.Time
}

// Narrative is generated prose for one content item. At most one current row
// per ContentID; regeneration overwrites text and increments Version.
type Narrative struct {
	ContentID string
	ProjectID string
	Text      string
	Version   int
	UpdatedAt time.Time
}
