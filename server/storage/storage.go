// Package storage abstracts the blob store where finished reframing results
// live. Results are small JSON documents, so the store only needs flat
// name-addressed read/write/delete, with an optional public URL for stores
// that can serve clients directly.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"
)

var (
	ErrNoPublicUrl  = errors.New("This storage system cannot provide public URLs")
	ErrFileNotExist = errors.New("File does not exist in storage")
)

// Storage is an abstraction of a blob store (eg GCS, or a local directory)
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(name string) (*File, error)

	DeleteFile(name string) error

	// URL returns a direct public URL for the named file, or ErrNoPublicUrl
	// if clients must fetch it through us.
	URL(name string) (string, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// IsNotExist is true if err means the named file is absent, as opposed to the
// store being broken. Lookup misses are normal for the result cache, so
// callers need to tell the two apart.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrFileNotExist)
}

func WriteFile(s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}

// WriteJSON marshals v and stores it under name.
func WriteJSON(s Storage, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFile(s, name, bytes.NewReader(raw))
}

// ReadJSON reads the named file and unmarshals it into v.
func ReadJSON(s Storage, name string, v any) error {
	raw, err := ReadFile(s, name)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
