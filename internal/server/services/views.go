package services

import "time"

// FileView is the external representation of a file record. The internal
// row id never leaves the service; clients address files by uuid or path.
type FileView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	Path           string    `json:"path"`
	Size           int64     `json:"size"`
	IsDownloadable bool      `json:"is_downloadable"`
}

// ListView is the response of the file listing: the owner's public account
// id plus one view per record.
type ListView struct {
	AccountID string      `json:"account_id"`
	Files     []*FileView `json:"files"`
}

// Principal identifies an authenticated user for the duration of a request.
type Principal struct {
	ID       int64
	Username string
	UUID     string
}
