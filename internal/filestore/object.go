package filestore

import (
	"io"
	"time"
)

// MaxPageSize is the largest page any supported backend returns.
const MaxPageSize = 1000

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "images/photo.jpg").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type (e.g. "image/jpeg").
	ContentType string

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time

	// IsDir is true when the key ends in "/" (a directory placeholder).
	IsDir bool

	// Metadata holds user-defined metadata, keyed without the vendor prefix.
	Metadata map[string]string
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// PageRequest selects one page of a delimiter listing.
type PageRequest struct {
	// Prefix restricts results to keys that start with this string.
	Prefix string

	// Delimiter groups keys into common prefixes. "" lists flat.
	Delimiter string

	// Marker is the pagination cursor from a previous Page.NextMarker.
	// Pass "" to start from the beginning.
	Marker string

	// MaxKeys caps the number of keys plus prefixes in the page.
	// 0 means MaxPageSize.
	MaxKeys int
}

// Page is one page of a delimiter listing.
type Page struct {
	// Prefixes are the common prefixes (virtual directories), each ending
	// in the delimiter.
	Prefixes []string

	// Objects are the keys directly under the requested prefix.
	Objects []ObjectInfo

	// NextMarker resumes the listing. Empty when the listing is complete.
	NextMarker string
}

// ACL is a canned access control list.
type ACL string

const (
	ACLDefault         ACL = "default"
	ACLPrivate         ACL = "private"
	ACLPublicRead      ACL = "public-read"
	ACLPublicReadWrite ACL = "public-read-write"
)

// IsPublic reports whether the ACL grants anonymous read access.
func (a ACL) IsPublic() bool {
	return a == ACLPublicRead || a == ACLPublicReadWrite
}

// PutOptions carries the optional headers of an upload.
type PutOptions struct {
	// ContentType is the MIME type stored with the object.
	ContentType string

	// ContentMD5 is the base64 MD5 digest of the body, verified by the backend.
	ContentMD5 string

	// Headers are extra request headers (Cache-Control, Content-Disposition,
	// x-amz-meta-*, ...). Unknown names are stored as user metadata.
	Headers map[string]string

	// ACL is applied at upload time when non-empty.
	ACL ACL
}

// NextMarkerFor derives a continuation marker for backends that report a
// truncated page without one: the greatest key or prefix in the page.
func NextMarkerFor(truncated bool, marker string, page *Page) string {
	if !truncated {
		return ""
	}
	if marker != "" {
		return marker
	}
	last := ""
	for _, p := range page.Prefixes {
		if p > last {
			last = p
		}
	}
	for _, o := range page.Objects {
		if o.Key > last {
			last = o.Key
		}
	}
	return last
}
