// Package models contains data structures used across handlers
package models

import "time"

// File is an object shown in the browser.
type File struct {
	Name           string    `json:"name"`
	Key            string    `json:"key"`
	Size           int64     `json:"size"`
	LastModified   time.Time `json:"lastModified"`
	IsSelected     bool      `json:"isSelected"`
	FormattedSize  string    `json:"formattedSize"`
	Modified       string    `json:"modified"`
	CreateTableURL string    `json:"createTableUrl,omitempty"`
}

// Folder is a common prefix, or one of the synthetic root folders.
type Folder struct {
	Name           string `json:"name"`
	Prefix         string `json:"prefix"`
	IsBigData      bool   `json:"isBigData"`
	IsSelected     bool   `json:"isSelected"`
	IsSharedFolder bool   `json:"isSharedFolder"`
}

// Breadcrumb for navigation
type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing is the full content of one prefix.
type Listing struct {
	Prefix      string       `json:"prefix"`
	Files       []File       `json:"files"`
	Folders     []Folder     `json:"folders"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs"`
}

// UploadStatus is the lifecycle state of an UploadTask.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadUploaded  UploadStatus = "uploaded"
	UploadFailed    UploadStatus = "failed"
	UploadAborted   UploadStatus = "aborted"
)

// UploadTask tracks one file through an upload run.
type UploadTask struct {
	Name         string       `json:"name"`
	RelativePath string       `json:"relativePath,omitempty"`
	Key          string       `json:"key"`
	Size         int64        `json:"size"`
	Progress     int          `json:"progress"`
	Status       UploadStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
}

// Settled reports whether the task reached a final status.
func (t UploadTask) Settled() bool {
	switch t.Status {
	case UploadUploaded, UploadFailed, UploadAborted:
		return true
	}
	return false
}

// DeleteTask tracks one selected file or folder through a delete run.
type DeleteTask struct {
	Key            string `json:"key"`
	IsFolder       bool   `json:"isFolder"`
	DeleteStarted  bool   `json:"deleteStarted"`
	DeleteFinished bool   `json:"deleteFinished"`
	DeleteError    string `json:"deleteError,omitempty"`
	KeysDeleted    int    `json:"keysDeleted"`
}

// BrowserPage is the view model of the "browser" page.
type BrowserPage struct {
	Title     string
	CSRFToken string
	Listing   Listing
	Usage     string
}

// ErrorDialog is the view model of the "error_dialog" partial.
type ErrorDialog struct {
	Message   string
	RequestID string
}
