package store

import (
	"context"
	"testing"

	"diskuto/internal/crypto"
	"diskuto/internal/item"
	"diskuto/internal/itemtest"
)

func testHash(t *testing.T, fill byte) crypto.Multihash {
	t.Helper()
	raw := make([]byte, crypto.MultihashSize)
	raw[0] = crypto.AlgoSHA512
	for i := 1; i < len(raw); i++ {
		raw[i] = fill
	}
	h, err := crypto.NewMultihash(raw)
	if err != nil {
		t.Fatalf("NewMultihash: %v", err)
	}
	return h
}

func TestKnownUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	author := itemtest.NewAuthor(t)

	if _, err := KnownUserByID(ctx, s.writer, author.UserID); err != ErrNotFound {
		t.Fatalf("KnownUserByID before Add = %v, want ErrNotFound", err)
	}

	quota := int64(1024)
	if err := AddKnownUser(ctx, s.writer, KnownUser{UserID: author.UserID, OnHomepage: true, QuotaBytes: &quota}); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}

	ku, err := KnownUserByID(ctx, s.writer, author.UserID)
	if err != nil {
		t.Fatalf("KnownUserByID: %v", err)
	}
	if !ku.OnHomepage || ku.QuotaBytes == nil || *ku.QuotaBytes != 1024 {
		t.Fatalf("unexpected known user: %+v", ku)
	}

	if err := RemoveKnownUser(ctx, s.writer, author.UserID); err != nil {
		t.Fatalf("RemoveKnownUser: %v", err)
	}
	if _, err := KnownUserByID(ctx, s.writer, author.UserID); err != ErrNotFound {
		t.Fatalf("KnownUserByID after Remove = %v, want ErrNotFound", err)
	}
}

func TestFollowedByKnownUserTransitivity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	known := itemtest.NewAuthor(t)
	follower := itemtest.NewAuthor(t)

	if err := AddKnownUser(ctx, s.writer, KnownUser{UserID: known.UserID}); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}

	if ok, err := FollowedByKnownUser(ctx, s.writer, follower.UserID); err != nil || ok {
		t.Fatalf("FollowedByKnownUser before follow = %v, %v, want false, nil", ok, err)
	}

	if err := ReplaceFollows(ctx, s.writer, known.UserID, nil); err != nil {
		t.Fatalf("ReplaceFollows(empty): %v", err)
	}
	if ok, _ := FollowedByKnownUser(ctx, s.writer, follower.UserID); ok {
		t.Fatal("follower should not be admitted with an empty follow list")
	}

	if err := ReplaceFollows(ctx, s.writer, known.UserID, []item.Follow{{UserID: follower.UserID}}); err != nil {
		t.Fatalf("ReplaceFollows: %v", err)
	}
	if ok, err := FollowedByKnownUser(ctx, s.writer, follower.UserID); err != nil || !ok {
		t.Fatalf("FollowedByKnownUser after follow = %v, %v, want true, nil", ok, err)
	}

	if err := ReplaceFollows(ctx, s.writer, known.UserID, nil); err != nil {
		t.Fatalf("ReplaceFollows(clear): %v", err)
	}
	if ok, _ := FollowedByKnownUser(ctx, s.writer, follower.UserID); ok {
		t.Fatal("follower should lose admission once removed from the follow list")
	}
}

func TestDeleteItemAndFileRefCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	author := itemtest.NewAuthor(t)
	hash := testHash(t, 0x42)

	rawA := itemtest.PostItem(t, 1000, "a")
	itA := mustParse(t, rawA)
	sigA := author.Sign(rawA)
	rawB := itemtest.PostItem(t, 2000, "b")
	itB := mustParse(t, rawB)
	sigB := author.Sign(rawB)

	if _, err := InsertItem(ctx, s.writer, itA, author.UserID, sigA, 1000); err != nil {
		t.Fatalf("InsertItem a: %v", err)
	}
	if _, err := InsertItem(ctx, s.writer, itB, author.UserID, sigB, 2000); err != nil {
		t.Fatalf("InsertItem b: %v", err)
	}
	if err := InsertFile(ctx, s.writer, author.UserID, sigA, "f", 10, hash, ""); err != nil {
		t.Fatalf("InsertFile a: %v", err)
	}
	if err := InsertFile(ctx, s.writer, author.UserID, sigB, "f", 10, hash, ""); err != nil {
		t.Fatalf("InsertFile b: %v", err)
	}
	if err := CompleteFile(ctx, s.writer, author.UserID, sigA, "f"); err != nil {
		t.Fatalf("CompleteFile a: %v", err)
	}
	if err := CompleteFile(ctx, s.writer, author.UserID, sigB, "f"); err != nil {
		t.Fatalf("CompleteFile b: %v", err)
	}

	if count, err := FileRefCount(ctx, s.writer, hash); err != nil || count != 2 {
		t.Fatalf("FileRefCount before any delete = %d, %v, want 2, nil", count, err)
	}

	hashes, err := DeleteItem(ctx, s.writer, author.UserID, sigA)
	if err != nil {
		t.Fatalf("DeleteItem a: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != hash {
		t.Fatalf("DeleteItem a returned hashes = %+v, want [%v]", hashes, hash)
	}
	if count, err := FileRefCount(ctx, s.writer, hash); err != nil || count != 1 {
		t.Fatalf("FileRefCount after first delete = %d, %v, want 1, nil (other item still references it)", count, err)
	}
	if _, err := GetItem(ctx, s.writer, author.UserID, sigA); err != ErrNotFound {
		t.Fatalf("GetItem after delete = %v, want ErrNotFound", err)
	}

	if _, err := DeleteItem(ctx, s.writer, author.UserID, sigB); err != nil {
		t.Fatalf("DeleteItem b: %v", err)
	}
	if count, err := FileRefCount(ctx, s.writer, hash); err != nil || count != 0 {
		t.Fatalf("FileRefCount after both deletes = %d, %v, want 0, nil", count, err)
	}
}
