package model

import "time"

// FileRecord is the persisted index entry mapping an upload's fileId to its
// storage location. Lookups go through this index, never through directory
// scans, and URL-only backends keep their URL here rather than assuming the
// caller still holds it.
type FileRecord struct {
	FileID      string    `json:"fileId" bson:"fileId"`
	FileName    string    `json:"fileName" bson:"fileName"`
	Backend     string    `json:"backend" bson:"backend"` // local, minio
	StorageKey  string    `json:"storageKey" bson:"storageKey"`
	URL         string    `json:"url,omitempty" bson:"url,omitempty"`
	ContentType string    `json:"contentType" bson:"contentType"`
	Size        int64     `json:"size" bson:"size"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}
