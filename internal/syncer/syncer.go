// Package syncer implements the one-way replication engine: reconcile
// the destination folder tree against the source, build a Message-ID
// index per destination folder, and copy only the source messages the
// index does not contain. Folder- and message-level errors are recorded
// and the run continues; nothing short of a lost connection stops it.
package syncer

import (
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/alexei-niemeyer/imapsync/internal/endpoint"
	"github.com/alexei-niemeyer/imapsync/internal/identity"
)

type Options struct {
	DryRun  bool
	Quiet   bool           // demote per-message narration to debug level
	Include *regexp.Regexp // optional source folder filter
	Exclude *regexp.Regexp
}

type Syncer struct {
	src, dst endpoint.Session
	log      *logrus.Logger
	opts     Options
	events   chan Event
}

func New(src, dst endpoint.Session, log *logrus.Logger, opts Options) *Syncer {
	if log == nil {
		log = logrus.New()
	}
	return &Syncer{src: src, dst: dst, log: log, opts: opts, events: make(chan Event, 128)}
}

// MissingFolders returns the source folders whose exact name is absent
// from the destination listing, in source listing order. No delimiter
// or case normalization is applied.
func MissingFolders(src, dst []endpoint.Folder) []endpoint.Folder {
	present := make(map[string]struct{}, len(dst))
	for _, f := range dst {
		present[f.Name] = struct{}{}
	}
	var missing []endpoint.Folder
	for _, f := range src {
		if _, ok := present[f.Name]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Run drives a full replication pass and returns its outcome. Both
// sessions must already be connected; closing them is the caller's
// responsibility so that it happens on every exit path.
func (s *Syncer) Run() *Outcome {
	out := &Outcome{}
	defer close(s.events)

	srcFolders, err := s.src.Folders()
	if err != nil {
		s.log.WithError(err).Error("Listing source folders failed")
		out.addFolderFailure("", "list-source", err)
		return out
	}
	srcFolders = s.filterFolders(srcFolders)
	s.log.WithField("count", len(srcFolders)).Info("Found folders on source")

	dstFolders, err := s.dst.Folders()
	if err != nil {
		s.log.WithError(err).Error("Listing destination folders failed")
		out.addFolderFailure("", "list-destination", err)
		return out
	}

	// Folders whose creation failed are skipped below: appending into
	// them could only fail message by message.
	broken := map[string]bool{}
	for _, f := range MissingFolders(srcFolders, dstFolders) {
		if s.opts.DryRun {
			s.log.WithField("folder", f.Name).Info("[dry-run] Would create folder on destination")
			out.add(&out.WouldCreateFolders)
			continue
		}
		if err := s.dst.Create(f.Name); err != nil {
			s.log.WithError(err).WithField("folder", f.Name).Error("Creating folder failed")
			out.addFolderFailure(f.Name, "create", err)
			broken[f.Name] = true
			continue
		}
		s.log.WithField("folder", f.Name).Info("Created folder on destination")
		out.add(&out.FoldersCreated)
	}

	for _, f := range srcFolders {
		if broken[f.Name] {
			continue
		}
		s.syncFolder(f.Name, out)
	}
	return out
}

// buildIndex returns the set of Message-IDs already present in a
// destination folder. It is rebuilt fresh for every folder on every
// run; the destination may have changed since the last pass. A non-nil
// error comes with an empty set: the caller proceeds and every source
// message will look new, which the operator learns from the log.
func buildIndex(sess endpoint.Session, folder string) (map[string]struct{}, error) {
	index := map[string]struct{}{}
	if err := sess.Select(folder); err != nil {
		return index, err
	}
	handles, err := sess.SearchAll()
	if err != nil {
		return index, err
	}
	if len(handles) == 0 {
		return index, nil
	}
	msgs, err := sess.Fetch(handles)
	if err != nil {
		return index, err
	}
	for _, m := range msgs {
		if id, ok := identity.Extract(m.Raw); ok {
			index[id] = struct{}{}
		}
	}
	return index, nil
}

func (s *Syncer) syncFolder(name string, out *Outcome) {
	log := s.log.WithField("folder", name)
	log.Info("Synchronizing folder")
	s.emit(Event{Type: EventFolderStart, Folder: name})
	defer s.emit(Event{Type: EventFolderDone, Folder: name})

	index, err := buildIndex(s.dst, name)
	if err != nil {
		log.WithError(err).Error("Building destination index failed; all source messages will look new")
		out.addFolderFailure(name, "index", err)
	}

	if err := s.src.Select(name); err != nil {
		log.WithError(err).Error("Selecting source folder failed")
		out.addFolderFailure(name, "select-source", err)
		return
	}
	handles, err := s.src.SearchAll()
	if err != nil {
		log.WithError(err).Error("Searching source folder failed")
		out.addFolderFailure(name, "search-source", err)
		return
	}
	if len(handles) == 0 {
		log.Info("No messages in source folder")
		return
	}
	msgs, err := s.src.Fetch(handles)
	if err != nil {
		log.WithError(err).Error("Fetching source messages failed")
		out.addFolderFailure(name, "fetch-source", err)
		return
	}

	log.WithField("count", len(msgs)).Info("Processing messages")
	s.emit(Event{Type: EventFolderProgress, Folder: name, Total: len(msgs), Done: 0})

	for i, msg := range msgs {
		s.transfer(name, msg, index, out)
		s.emit(Event{Type: EventFolderProgress, Folder: name, Total: len(msgs), Done: i + 1})
	}
}

// transfer decides skip or copy for a single message. The index is not
// mutated during the pass: it is a point-in-time snapshot of the
// destination, consumed by exactly one transfer pass.
func (s *Syncer) transfer(folder string, msg endpoint.Message, index map[string]struct{}, out *Outcome) {
	log := s.log.WithField("folder", folder)
	id, ok := identity.Extract(msg.Raw)
	if !ok {
		// Always logged, quiet or not.
		log.Warn("Message has no Message-ID, skipped")
		out.add(&out.SkippedNoIdentity)
		return
	}
	log = log.WithField("message_id", id)
	if _, dup := index[id]; dup {
		log.Debug("Message already exists on destination")
		out.add(&out.SkippedDuplicate)
		return
	}
	if s.opts.DryRun {
		log.Log(s.msgLevel(), "[dry-run] Would copy message")
		out.add(&out.WouldCopy)
		return
	}
	if err := s.dst.Append(folder, msg); err != nil {
		log.WithError(err).Error("Appending message failed")
		out.addMessageFailure(folder, "append", err)
		return
	}
	log.Log(s.msgLevel(), "Copied message to destination")
	out.add(&out.Copied)
}

// msgLevel is the level for per-message narration: info normally,
// debug when quiet.
func (s *Syncer) msgLevel() logrus.Level {
	if s.opts.Quiet {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

func (s *Syncer) filterFolders(folders []endpoint.Folder) []endpoint.Folder {
	if s.opts.Include == nil && s.opts.Exclude == nil {
		return folders
	}
	filtered := make([]endpoint.Folder, 0, len(folders))
	for _, f := range folders {
		if s.opts.Include != nil && !s.opts.Include.MatchString(f.Name) {
			continue
		}
		if s.opts.Exclude != nil && s.opts.Exclude.MatchString(f.Name) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

// Events returns a read-only channel of progress events. It is closed
// when Run returns.
func (s *Syncer) Events() <-chan Event { return s.events }

func (s *Syncer) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// drop if slow consumer
	}
}
