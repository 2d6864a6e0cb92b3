package library_test

import (
	"context"
	"testing"
)

func TestTags_TagAndUntag(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	noteID, err := lib.CreateNote(ctx, "grocery run", "eggs")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	for _, name := range []string{"errands", "home", "errands"} {
		if err := lib.TagNote(ctx, noteID, name); err != nil {
			t.Fatalf("tag %q: %v", name, err)
		}
	}

	tags, err := lib.NoteTags(ctx, noteID)
	if err != nil {
		t.Fatalf("note tags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "errands" || tags[1] != "home" {
		t.Fatalf("tags = %v, want [errands home]", tags)
	}

	if err := lib.UntagNote(ctx, noteID, "home"); err != nil {
		t.Fatalf("untag: %v", err)
	}
	tags, err = lib.NoteTags(ctx, noteID)
	if err != nil {
		t.Fatalf("note tags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "errands" {
		t.Fatalf("tags = %v, want [errands]", tags)
	}

	// The tag row survives for reuse even with no notes attached.
	all, err := lib.ListTags(ctx)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("tags = %+v, want 2 rows", all)
	}
}

func TestTags_UnknownNoteRejected(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	err := lib.TagNote(ctx, "no-such-note", "orphan")
	if err == nil {
		t.Fatal("expected error for unknown note")
	}
}

func TestTags_CountsOrderListing(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	a, err := lib.CreateNote(ctx, "a", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := lib.CreateNote(ctx, "b", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, pair := range [][2]string{{a, "work"}, {b, "work"}, {a, "idea"}} {
		if err := lib.TagNote(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("tag: %v", err)
		}
	}

	tags, err := lib.ListTags(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %+v", tags)
	}
	if tags[0].Name != "work" || tags[0].NoteCount != 2 {
		t.Fatalf("first tag = %+v, want work with 2 notes", tags[0])
	}
	if tags[1].Name != "idea" || tags[1].NoteCount != 1 {
		t.Fatalf("second tag = %+v, want idea with 1 note", tags[1])
	}
}
