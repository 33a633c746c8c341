package endpoint

import "fmt"

// Memory is an in-memory Session used by tests and offline tooling. It
// records every mutating call so callers can assert that dry-run modes
// really issue none.
type Memory struct {
	folders  []Folder
	messages map[string][]Message
	selected string
	closed   bool

	// Injected failures, keyed by folder name where applicable.
	ListErr    error
	SelectErrs map[string]error
	FetchErrs  map[string]error
	CreateErr  error
	AppendErr  error

	// Call records.
	Created     []string
	Appends     []AppendRecord
	FolderCalls int
}

// AppendRecord captures one Append call.
type AppendRecord struct {
	Folder  string
	Message Message
}

// NewMemory returns an empty in-memory endpoint.
func NewMemory() *Memory {
	return &Memory{messages: map[string][]Message{}}
}

// AddFolder registers a folder, optionally pre-populated with messages.
func (m *Memory) AddFolder(name string, msgs ...Message) {
	m.folders = append(m.folders, Folder{Name: name, Delimiter: "/"})
	m.messages[name] = append(m.messages[name], msgs...)
}

func (m *Memory) Folders() ([]Folder, error) {
	m.FolderCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]Folder, len(m.folders))
	copy(out, m.folders)
	return out, nil
}

func (m *Memory) Create(name string) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Created = append(m.Created, name)
	m.AddFolder(name)
	return nil
}

func (m *Memory) Select(name string) error {
	if err := m.SelectErrs[name]; err != nil {
		return err
	}
	if _, ok := m.messages[name]; !ok {
		return fmt.Errorf("no such folder: %s", name)
	}
	m.selected = name
	return nil
}

func (m *Memory) SearchAll() ([]uint32, error) {
	msgs := m.messages[m.selected]
	handles := make([]uint32, 0, len(msgs))
	for i := range msgs {
		handles = append(handles, uint32(i+1))
	}
	return handles, nil
}

func (m *Memory) Fetch(handles []uint32) ([]Message, error) {
	if err := m.FetchErrs[m.selected]; err != nil {
		return nil, err
	}
	msgs := m.messages[m.selected]
	out := make([]Message, 0, len(handles))
	for _, h := range handles {
		if h == 0 || int(h) > len(msgs) {
			return nil, fmt.Errorf("no message with handle %d", h)
		}
		out = append(out, msgs[h-1])
	}
	return out, nil
}

func (m *Memory) Append(folder string, msg Message) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	if _, ok := m.messages[folder]; !ok {
		return fmt.Errorf("no such folder: %s", folder)
	}
	m.Appends = append(m.Appends, AppendRecord{Folder: folder, Message: msg})
	m.messages[folder] = append(m.messages[folder], msg)
	return nil
}

func (m *Memory) Logout() error {
	m.closed = true
	return nil
}

// Closed reports whether Logout has been called.
func (m *Memory) Closed() bool { return m.closed }

// MessagesIn returns the messages currently stored in a folder.
func (m *Memory) MessagesIn(name string) []Message { return m.messages[name] }
