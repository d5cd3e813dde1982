package mux

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// WriteSeekCloser is the sink a container writes into. MP4 finalization
// seeks back to patch the header, so plain writers are not enough.
type WriteSeekCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Destination is a writer capability for one recording output. The
// pipeline opens destinations during session start; an open failure is
// a fatal session error for that output.
type Destination interface {
	// Open creates the sink. Called once per session.
	Open() (WriteSeekCloser, error)

	// String identifies the destination in results and logs.
	String() string
}

// FileDestination writes a recording output to a filesystem path.
// The file is created on Open, truncating any previous content.
type FileDestination string

// Open creates the destination file.
func (d FileDestination) Open() (WriteSeekCloser, error) {
	file, err := os.Create(string(d))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Open",
			"path":     string(d),
			"error":    err.Error(),
		}).Error("Failed to create destination file")
		return nil, fmt.Errorf("%w: %s: %v", ErrDestinationOpen, d, err)
	}
	return file, nil
}

// String returns the destination path.
func (d FileDestination) String() string {
	return string(d)
}
