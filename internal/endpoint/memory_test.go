package endpoint

import "testing"

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	m.AddFolder("INBOX", Message{Raw: []byte("a")}, Message{Raw: []byte("b")})

	if err := m.Select("INBOX"); err != nil {
		t.Fatal(err)
	}
	handles, err := m.SearchAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}
	msgs, err := m.Fetch(handles)
	if err != nil {
		t.Fatal(err)
	}
	if string(msgs[1].Raw) != "b" {
		t.Fatalf("unexpected message: %q", msgs[1].Raw)
	}
}

func TestMemorySelectUnknownFolder(t *testing.T) {
	m := NewMemory()
	if err := m.Select("nope"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestMemoryAppendUnknownFolder(t *testing.T) {
	m := NewMemory()
	if err := m.Append("nope", Message{}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestMemoryLogout(t *testing.T) {
	m := NewMemory()
	if m.Closed() {
		t.Fatal("fresh session must not be closed")
	}
	if err := m.Logout(); err != nil {
		t.Fatal(err)
	}
	if !m.Closed() {
		t.Fatal("expected closed after logout")
	}
}
