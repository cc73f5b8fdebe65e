package domain

import "time"

// Actor identifies a person on the source system.
type Actor struct {
	// Login is the account name used for identity resolution (e.g. "j.smith").
	Login string

	// DisplayName is the human-readable name shown in reports.
	DisplayName string
}

// Empty reports whether the actor carries no identity at all.
func (a Actor) Empty() bool { return a.Login == "" && a.DisplayName == "" }

// Attachment is a file attached to a source record. Content is fetched
// lazily through the source client using ContentURL.
type Attachment struct {
	Filename   string
	MimeType   string
	Size       int64
	ContentURL string
	Author     Actor
	Created    string
}

// Comment is a single comment on a source record, oldest first.
type Comment struct {
	Author  Actor
	Body    string
	Created string
}

// Issue is one source record in the shape the migration consumes. The source
// adapter converts wire JSON into this form; everything downstream of the
// fetch stage works on Issue values only.
type Issue struct {
	// Key is the source-unique record key (e.g. "SUP-1432").
	Key string

	Summary     string
	Description string

	// Status, Type and Priority are the source-side display names; mapping
	// to target identifiers happens during transform.
	Status   string
	Type     string
	Priority string

	Reporter     Actor
	Assignee     Actor
	Participants []Actor

	// Created, Updated and Resolved are source wire timestamps, parsed
	// during transform.
	Created  string
	Updated  string
	Resolved string

	// SecurityLevel is the name of the record's security level, when any.
	SecurityLevel string

	// RequestType and Classification come from configured custom fields.
	RequestType    string
	Classification []string

	Attachments []Attachment
	Comments    []Comment
}

// MissingEntity is an identity seen on a source record that has no account
// on the target system.
type MissingEntity struct {
	// Login is the identifying key; deduplication is by Login.
	Login string

	// DisplayName is the name recorded at first sight of the login.
	DisplayName string
}

// ReferenceKind names one class of target-side reference data that can be
// resolved by name.
type ReferenceKind string

const (
	KindUser     ReferenceKind = "user"
	KindGroup    ReferenceKind = "group"
	KindCategory ReferenceKind = "category"
	KindLocation ReferenceKind = "location"
)

// Summary aggregates the outcome of one migration run.
type Summary struct {
	RunID       string
	StartCursor int
	FinalCursor int
	Total       int
	Fetched     int
	Created     int
	Skipped     int
	Missing     int
	Started     time.Time
	Finished    time.Time
}
