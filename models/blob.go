package models

import "io"

// RemoteObject is the metadata of an object in a bucket. Generation is opaque and only compared for equality.
type RemoteObject struct {
	Bucket     string
	Path       string
	Size       int64
	Generation string
}

type Blob struct {
	FileName   string
	ReadCloser io.ReadCloser
}
