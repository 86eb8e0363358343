package listing

import (
	"time"

	"github.com/3leaps/blobfs/pkg/provider"
)

// Kind distinguishes files from directories in a listing.
type Kind int

const (
	// KindFile is a stored object.
	KindFile Kind = iota

	// KindDirectory is a directory marker or a synthesized directory.
	KindDirectory
)

// String returns "file" or "dir".
func (k Kind) String() string {
	if k == KindDirectory {
		return "dir"
	}
	return "file"
}

// Node is one entry of a directory listing.
//
// Directory paths end with exactly one "/", file paths never do. Absent
// attributes are nil (Size, LastModified) or empty (MimeType).
type Node struct {
	Path         string
	Kind         Kind
	Size         *int64
	LastModified *time.Time
	MimeType     string
}

// IsDir reports whether the node is a directory.
func (n Node) IsDir() bool {
	return n.Kind == KindDirectory
}

// dirNode builds a synthesized directory node with no attributes.
func dirNode(path string) Node {
	return Node{Path: path, Kind: KindDirectory}
}

// entryNode converts a listed object into a node, keeping store attributes.
// Directory markers carry no size.
func entryNode(obj provider.ObjectSummary) Node {
	n := Node{
		Path:     obj.Key,
		Kind:     KindFile,
		MimeType: obj.ContentType,
	}
	if IsDirKey(obj.Key) {
		n.Kind = KindDirectory
	} else {
		size := obj.Size
		n.Size = &size
	}
	if !obj.LastModified.IsZero() {
		lm := obj.LastModified
		n.LastModified = &lm
	}
	return n
}
