package models

import "time"

// File describes a stored file record. The virtual Path is unique across
// the whole store, so exactly one record exists per path; re-uploading to
// the same path mutates this record instead of creating a duplicate.
// The UUID is assigned once at creation and never changes across replaces.
type File struct {
	ID             int64
	UserID         int64
	Path           string
	Size           int64
	IsDownloadable bool
	UUID           string
	CreatedAt      time.Time
}

// Name returns the display filename, the trailing segment of the path.
func (f *File) Name() string {
	for i := len(f.Path) - 1; i >= 0; i-- {
		if f.Path[i] == '/' {
			return f.Path[i+1:]
		}
	}
	return f.Path
}
