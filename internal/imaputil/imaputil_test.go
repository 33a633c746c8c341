package imaputil

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

// failingLiteral errors on the first read.
type failingLiteral struct{}

func (failingLiteral) Read([]byte) (int, error) { return 0, errors.New("short read") }
func (failingLiteral) Len() int                 { return 10 }

func fetchedMessage(uid uint32, section *imap.BodySectionName, lit imap.Literal) *imap.Message {
	return &imap.Message{
		Uid:          uid,
		Flags:        []string{"\\Seen"},
		InternalDate: time.Now(),
		Body:         map[*imap.BodySectionName]imap.Literal{section: lit},
	}
}

func TestCollectMessages(t *testing.T) {
	section := &imap.BodySectionName{}
	ch := make(chan *imap.Message, 4)
	ch <- fetchedMessage(1, section, bytes.NewBufferString("first"))
	ch <- fetchedMessage(2, section, bytes.NewBufferString("second"))
	close(ch)
	done := make(chan error, 1)
	done <- nil

	msgs, err := collectMessages(ch, done, section)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[1].Raw) != "second" {
		t.Fatalf("unexpected raw: %q", msgs[1].Raw)
	}
	if len(msgs[0].Flags) != 1 || msgs[0].Flags[0] != "\\Seen" {
		t.Fatalf("flags not preserved: %v", msgs[0].Flags)
	}
}

func TestCollectMessagesDrainsAfterBodyError(t *testing.T) {
	section := &imap.BodySectionName{}
	// Unbuffered: the test deadlocks if the collector stops consuming
	// after the failing literal.
	ch := make(chan *imap.Message)
	done := make(chan error, 1)
	go func() {
		ch <- fetchedMessage(1, section, failingLiteral{})
		ch <- fetchedMessage(2, section, bytes.NewBufferString("after the error"))
		ch <- fetchedMessage(3, section, bytes.NewBufferString("still consumed"))
		close(ch)
		done <- nil
	}()

	msgs, err := collectMessages(ch, done, section)
	if err == nil {
		t.Fatal("expected the body read error")
	}
	if msgs != nil {
		t.Fatalf("expected no messages on error, got %d", len(msgs))
	}
}

func TestCollectMessagesFetchError(t *testing.T) {
	section := &imap.BodySectionName{}
	ch := make(chan *imap.Message)
	close(ch)
	done := make(chan error, 1)
	done <- errors.New("fetch: connection reset")

	if _, err := collectMessages(ch, done, section); err == nil {
		t.Fatal("expected the fetch error")
	}
}
