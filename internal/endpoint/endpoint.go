// Package endpoint defines the session capability one side of a sync
// exposes: folder listing and creation, message search, bulk fetch and
// append. The core engine only ever talks to this interface, so it can
// run against a real IMAP connection or an in-memory mailbox alike.
package endpoint

import "time"

// Folder describes one mailbox folder as reported by a listing.
// Identity is the exact Name string; no delimiter or case normalization
// is applied anywhere.
type Folder struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// Message is the full transferable representation of one message: the
// raw RFC 822 bytes plus the protocol flags and internal date observed
// at fetch time.
type Message struct {
	Raw   []byte
	Flags []string
	Date  time.Time
}

// Session is an authenticated connection to one mail endpoint.
//
// Select sets the folder that subsequent SearchAll/Fetch calls operate
// on. Append does not require a prior Select. Implementations are not
// safe for concurrent use; the engine drives a session from a single
// goroutine.
type Session interface {
	// Folders lists all folders in the account's natural listing order.
	Folders() ([]Folder, error)

	// Create creates a folder with the given name.
	Create(name string) error

	// Select opens the named folder for searching and fetching.
	Select(name string) error

	// SearchAll returns handles for every message in the selected folder.
	SearchAll() ([]uint32, error)

	// Fetch retrieves the messages for the given handles.
	Fetch(handles []uint32) ([]Message, error)

	// Append stores a message into the named folder, preserving the
	// flags and date carried by msg.
	Append(folder string, msg Message) error

	// Logout closes the session. Safe to call after a failed operation.
	Logout() error
}
