// Package imaputil adapts an IMAP connection to the endpoint.Session
// capability consumed by the sync engine.
package imaputil

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/alexei-niemeyer/imapsync/internal/endpoint"
)

// Connect dials host:port, negotiates TLS and logs in. Certificate and
// hostname verification is always enforced; there is no insecure mode.
func Connect(host string, port int, user, pass string, startTLS bool) (endpoint.Session, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	var c *client.Client
	var err error
	if startTLS {
		// Plain connection, then upgrade with STARTTLS
		c, err = client.Dial(addr)
		if err != nil {
			return nil, err
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			return nil, err
		}
	} else {
		c, err = client.DialTLS(addr, tlsConfig)
		if err != nil {
			return nil, err
		}
	}
	// Enable raw IMAP wire debug if requested via environment variable
	if os.Getenv("IMAPSYNC_IMAP_DEBUG") == "1" {
		c.SetDebug(os.Stderr)
	}
	if err := c.Login(user, pass); err != nil {
		_ = c.Logout()
		return nil, err
	}
	return &session{c: c}, nil
}

// session implements endpoint.Session over a go-imap client.
type session struct {
	c *client.Client
}

func (s *session) Folders() ([]endpoint.Folder, error) {
	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", ch)
	}()
	var folders []endpoint.Folder
	for m := range ch {
		if m == nil {
			continue
		}
		folders = append(folders, endpoint.Folder{
			Name:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return folders, nil
}

func (s *session) Create(name string) error {
	return s.c.Create(name)
}

func (s *session) Select(name string) error {
	_, err := s.c.Select(name, false)
	return err
}

func (s *session) SearchAll() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(1, 4294967295)
	return s.c.UidSearch(criteria)
}

func (s *session) Fetch(handles []uint32) ([]endpoint.Message, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	seq := new(imap.SeqSet)
	for _, uid := range handles {
		seq.AddNum(uid)
	}

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid}

	ch := make(chan *imap.Message, 64)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seq, items, ch)
	}()

	return collectMessages(ch, done, section)
}

// collectMessages drains a fetch channel into endpoint messages. The
// channel is always consumed to the end, even after a body read error,
// so the fetch goroutine never blocks on a full channel.
func collectMessages(ch <-chan *imap.Message, done <-chan error, section *imap.BodySectionName) ([]endpoint.Message, error) {
	var msgs []endpoint.Message
	var readErr error
	for msg := range ch {
		if msg == nil || readErr != nil {
			continue
		}
		lit := msg.GetBody(section)
		if lit == nil {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, lit); err != nil {
			readErr = fmt.Errorf("read body of UID %d: %w", msg.Uid, err)
			continue
		}
		msgs = append(msgs, endpoint.Message{
			Raw:   buf.Bytes(),
			Flags: msg.Flags,
			Date:  msg.InternalDate,
		})
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return msgs, nil
}

func (s *session) Append(folder string, msg endpoint.Message) error {
	if err := s.c.Append(folder, msg.Flags, msg.Date, bytes.NewReader(msg.Raw)); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

func (s *session) Logout() error {
	return s.c.Logout()
}
