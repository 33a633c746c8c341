package syncer

import (
	"bytes"
	"io"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"github.com/alexei-niemeyer/imapsync/internal/endpoint"
	"github.com/alexei-niemeyer/imapsync/internal/identity"
)

// ImportMbox replays a local mbox stream into one destination folder,
// applying the same de-duplication as the IMAP path: messages whose
// Message-ID is already present on the destination are skipped, and
// messages without one are skipped with a warning. The folder is
// created when missing. Imported messages carry no flags; the date
// comes from the Date header, falling back to the current time.
func ImportMbox(dst endpoint.Session, log *logrus.Logger, r io.Reader, folder string, opts Options) *Outcome {
	if log == nil {
		log = logrus.New()
	}
	out := &Outcome{}
	msgLevel := logrus.InfoLevel
	if opts.Quiet {
		msgLevel = logrus.DebugLevel
	}

	if err := ensureFolder(dst, log, folder, opts.DryRun, out); err != nil {
		return out
	}

	index, err := buildIndex(dst, folder)
	if err != nil {
		log.WithError(err).WithField("folder", folder).Error("Building destination index failed; all mbox messages will look new")
		out.addFolderFailure(folder, "index", err)
	}

	mr := mbox.NewReader(r)
	for {
		msg, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Error("Reading mbox failed")
			out.addFolderFailure(folder, "read-mbox", err)
			break
		}
		raw, err := io.ReadAll(msg)
		if err != nil {
			log.WithError(err).Error("Reading mbox message failed")
			out.addFolderFailure(folder, "read-mbox", err)
			break
		}

		id, ok := identity.Extract(raw)
		if !ok {
			log.WithField("folder", folder).Warn("Message has no Message-ID, skipped")
			out.add(&out.SkippedNoIdentity)
			continue
		}
		mlog := log.WithField("folder", folder).WithField("message_id", id)
		if _, dup := index[id]; dup {
			mlog.Debug("Message already exists on destination")
			out.add(&out.SkippedDuplicate)
			continue
		}
		if opts.DryRun {
			mlog.Log(msgLevel, "[dry-run] Would copy message")
			out.add(&out.WouldCopy)
			continue
		}
		date := messageDate(raw)
		if date.IsZero() {
			date = time.Now()
		}
		if err := dst.Append(folder, endpoint.Message{Raw: raw, Date: date}); err != nil {
			mlog.WithError(err).Error("Appending message failed")
			out.addMessageFailure(folder, "append", err)
			continue
		}
		mlog.Log(msgLevel, "Copied message to destination")
		out.add(&out.Copied)
	}
	return out
}

func ensureFolder(dst endpoint.Session, log *logrus.Logger, folder string, dryRun bool, out *Outcome) error {
	folders, err := dst.Folders()
	if err != nil {
		log.WithError(err).Error("Listing destination folders failed")
		out.addFolderFailure("", "list-destination", err)
		return err
	}
	for _, f := range folders {
		if f.Name == folder {
			return nil
		}
	}
	if dryRun {
		log.WithField("folder", folder).Info("[dry-run] Would create folder on destination")
		out.add(&out.WouldCreateFolders)
		return nil
	}
	if err := dst.Create(folder); err != nil {
		log.WithError(err).WithField("folder", folder).Error("Creating folder failed")
		out.addFolderFailure(folder, "create", err)
		return err
	}
	log.WithField("folder", folder).Info("Created folder on destination")
	out.add(&out.FoldersCreated)
	return nil
}

func messageDate(raw []byte) time.Time {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return time.Time{}
	}
	if entity == nil {
		return time.Time{}
	}
	h := gomail.Header{Header: entity.Header}
	t, err := h.Date()
	if err != nil {
		return time.Time{}
	}
	return t
}
