package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Failure records one folder- or message-scoped error. Stage names the
// operation that failed (list, create, select, index, fetch, append).
type Failure struct {
	Folder string `json:"folder"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// Outcome accumulates the counters and failures of one run. It is
// rebuilt fresh every run and only ever surfaced as a report; it is
// never consulted by a later run.
type Outcome struct {
	mu sync.Mutex

	FoldersCreated     int `json:"folders_created"`
	WouldCreateFolders int `json:"would_create_folders"`
	Copied             int `json:"copied"`
	WouldCopy          int `json:"would_copy"`
	SkippedDuplicate   int `json:"skipped_duplicate"`
	SkippedNoIdentity  int `json:"skipped_no_identity"`

	FolderFailures  []Failure `json:"folder_failures,omitempty"`
	MessageFailures []Failure `json:"message_failures,omitempty"`
}

func (o *Outcome) addFolderFailure(folder, stage string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.FolderFailures = append(o.FolderFailures, Failure{Folder: folder, Stage: stage, Error: err.Error()})
}

func (o *Outcome) addMessageFailure(folder, stage string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.MessageFailures = append(o.MessageFailures, Failure{Folder: folder, Stage: stage, Error: err.Error()})
}

func (o *Outcome) add(counter *int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*counter++
}

// Summary renders a one-line human-readable report.
func (o *Outcome) Summary() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := fmt.Sprintf("folders created: %d, copied: %d, skipped duplicate: %d, skipped no-identity: %d",
		o.FoldersCreated, o.Copied, o.SkippedDuplicate, o.SkippedNoIdentity)
	if o.WouldCreateFolders > 0 || o.WouldCopy > 0 {
		s += fmt.Sprintf(", would create: %d, would copy: %d", o.WouldCreateFolders, o.WouldCopy)
	}
	if len(o.FolderFailures) > 0 || len(o.MessageFailures) > 0 {
		s += fmt.Sprintf(", failures: %d folder(s) / %d message(s)", len(o.FolderFailures), len(o.MessageFailures))
	}
	return s
}

// Save writes the outcome as indented JSON. An empty path is a no-op.
func (o *Outcome) Save(path string) error {
	if path == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
