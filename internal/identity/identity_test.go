package identity

import "testing"

func TestExtractVerbatim(t *testing.T) {
	raw := []byte("Message-ID: <abc@x>\r\nFrom: a@x\r\nSubject: hi\r\n\r\nbody\r\n")
	id, ok := Extract(raw)
	if !ok {
		t.Fatal("expected an identity")
	}
	if id != "<abc@x>" {
		t.Fatalf("expected verbatim <abc@x>, got %q", id)
	}
}

func TestExtractHeaderNameCaseInsensitive(t *testing.T) {
	raw := []byte("message-id: <abc@x>\r\n\r\n")
	id, ok := Extract(raw)
	if !ok || id != "<abc@x>" {
		t.Fatalf("got %q, %v", id, ok)
	}
}

func TestExtractMissingHeader(t *testing.T) {
	raw := []byte("From: a@x\r\nSubject: hi\r\n\r\nbody\r\n")
	if id, ok := Extract(raw); ok {
		t.Fatalf("expected absent identity, got %q", id)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	if id, ok := Extract(nil); ok {
		t.Fatalf("expected absent identity, got %q", id)
	}
}

func TestExtractFoldedHeader(t *testing.T) {
	raw := []byte("Message-ID:\r\n <folded@x>\r\nSubject: hi\r\n\r\nbody\r\n")
	id, ok := Extract(raw)
	if !ok {
		t.Fatal("expected an identity from a folded header")
	}
	if id == "" {
		t.Fatal("expected a non-empty identity")
	}
}

func TestExtractUnknownCharsetStillHasIdentity(t *testing.T) {
	raw := []byte("Message-ID: <x@y>\r\nContent-Type: text/plain; charset=x-nonexistent\r\n\r\nbody\r\n")
	id, ok := Extract(raw)
	if !ok || id != "<x@y>" {
		t.Fatalf("got %q, %v", id, ok)
	}
}
