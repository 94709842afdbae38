package media

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dolltrack/internal/inventory"
)

func TestValidateExtension(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.gif"} {
		if _, err := ValidateExtension(name); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
	for _, name := range []string{"a.txt", "b.exe", "noext", "c.svg"} {
		if _, err := ValidateExtension(name); !errors.Is(err, inventory.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestSaveAndResolve(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	rel, err := s.Save(7, "front.PNG", strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(rel, "7/") || !strings.HasSuffix(rel, ".png") {
		t.Fatalf("unexpected relative path: %q", rel)
	}

	abs, err := s.Resolve(rel)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("read back: %q %v", data, err)
	}

	// Two saves of the same filename never collide.
	rel2, err := s.Save(7, "front.PNG", strings.NewReader("other"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rel2 == rel {
		t.Fatalf("expected unique paths, got %q twice", rel)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "photos"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	secret := filepath.Join(root, "secret.png")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	for _, rel := range []string{
		"../secret.png",
		"..\\secret.png",
		"7/../../secret.png",
		"",
		".",
	} {
		if _, err := s.Resolve(rel); !errors.Is(err, inventory.ErrNotFound) {
			t.Errorf("%q: expected ErrNotFound, got %v", rel, err)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	rel, err := s.Save(1, "a.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Remove(rel); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(rel); err != nil {
		t.Fatalf("second remove must be a no-op, got %v", err)
	}
	if _, err := s.Resolve(rel); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("removed file must not resolve, got %v", err)
	}
}
