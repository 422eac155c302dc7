// Package lister rebuilds a directory tree view over a flat object key
// namespace using paginated prefix/delimiter listing.
package lister

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/objectfs/internal/filestore"
)

const delimiter = "/"

// EntryType tags an Entry as a directory or a file.
type EntryType string

const (
	TypeDirectory EntryType = "dir"
	TypeFile      EntryType = "file"
)

// Entry is one result of a listing. Size and LastModified are only set for files.
type Entry struct {
	Type         EntryType
	Path         string
	Size         uint64
	LastModified time.Time
}

func (e Entry) IsDir() bool { return e.Type == TypeDirectory }

// Directory returns a directory entry for prefix.
func Directory(prefix string) Entry {
	return Entry{Type: TypeDirectory, Path: prefix}
}

// File returns a file entry.
func File(key string, size uint64, lastModified time.Time) Entry {
	return Entry{Type: TypeFile, Path: key, Size: size, LastModified: lastModified}
}

// Lister lists one bucket. It holds no state between calls and is safe
// for concurrent use.
type Lister struct {
	backend  filestore.PageLister
	bucket   string
	pageSize int
}

// New returns a Lister over bucket. pageSize <= 0 selects
// filestore.MaxPageSize; larger values are clamped to it.
func New(backend filestore.PageLister, bucket string, pageSize int) *Lister {
	if pageSize <= 0 || pageSize > filestore.MaxPageSize {
		pageSize = filestore.MaxPageSize
	}
	return &Lister{backend: backend, bucket: bucket, pageSize: pageSize}
}

// Normalize strips trailing slashes and backslashes from a directory path.
func Normalize(path string) string {
	return strings.TrimRight(path, "/\\")
}

// List returns the entries under path. With recursive set, each directory
// is followed immediately by its own descendants, depth first.
//
// Any backend error aborts the listing and is returned as is; no partial
// result is returned. An empty path lists the bucket root with prefix ""
// rather than "/".
func (l *Lister) List(ctx context.Context, path string, recursive bool) ([]Entry, error) {
	var out []Entry
	if err := l.list(ctx, path, recursive, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first page of entries under path without recursing.
func (l *Lister) First(ctx context.Context, path string) ([]Entry, error) {
	directory := Normalize(path)
	page, err := l.backend.ListPage(ctx, l.bucket, l.request(directory, ""))
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, p := range page.Prefixes {
		out = append(out, Directory(p))
	}
	appendFiles(&out, directory, page.Objects)
	return out, nil
}

func (l *Lister) list(ctx context.Context, path string, recursive bool, out *[]Entry) error {
	directory := Normalize(path)

	marker := ""
	for {
		page, err := l.backend.ListPage(ctx, l.bucket, l.request(directory, marker))
		if err != nil {
			return err
		}

		for _, p := range page.Prefixes {
			*out = append(*out, Directory(p))
			if recursive {
				if err := l.list(ctx, p, true, out); err != nil {
					return err
				}
			}
		}
		appendFiles(out, directory, page.Objects)

		marker = page.NextMarker
		if marker == "" {
			return nil
		}
	}
}

func (l *Lister) request(directory, marker string) filestore.PageRequest {
	return filestore.PageRequest{
		Prefix:    prefixOf(directory),
		Delimiter: delimiter,
		Marker:    marker,
		MaxKeys:   l.pageSize,
	}
}

// appendFiles skips only the zero-byte placeholder whose key is exactly
// directory + "/". A zero-byte placeholder of a deeper directory met on
// this level is kept.
func appendFiles(out *[]Entry, directory string, objects []filestore.ObjectInfo) {
	placeholder := directory + delimiter
	for _, o := range objects {
		if o.Size == 0 && o.Key == placeholder {
			continue
		}
		size := uint64(0)
		if o.Size > 0 {
			size = uint64(o.Size)
		}
		*out = append(*out, File(o.Key, size, o.LastModified))
	}
}

// prefixOf maps the bucket root to the empty prefix.
func prefixOf(directory string) string {
	if directory == "" {
		return ""
	}
	return directory + delimiter
}
