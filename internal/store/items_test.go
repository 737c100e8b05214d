package store

import (
	"context"
	"database/sql"
	"testing"

	"diskuto/internal/crypto"
	"diskuto/internal/feed"
	"diskuto/internal/item"
	"diskuto/internal/itemtest"
)

func mustParse(t *testing.T, raw []byte) *item.Item {
	t.Helper()
	it, err := item.Parse(raw)
	if err != nil {
		t.Fatalf("item.Parse: %v", err)
	}
	return it
}

func TestInsertAndGetItem(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	author := itemtest.NewAuthor(t)
	raw := itemtest.PostItem(t, 1000, "hello")
	it := mustParse(t, raw)
	sig := author.Sign(raw)

	if _, err := GetItem(ctx, s.writer, author.UserID, sig); err != ErrNotFound {
		t.Fatalf("GetItem before insert = %v, want ErrNotFound", err)
	}

	var inserted bool
	err := s.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		inserted, err = InsertItem(ctx, tx, it, author.UserID, sig, 1000)
		return err
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted=true")
	}

	got, err := GetItem(ctx, s.writer, author.UserID, sig)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if string(got.RawBytes) != string(raw) {
		t.Fatal("stored bytes do not match the bytes that were put")
	}

	err = s.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		inserted, err = InsertItem(ctx, tx, it, author.UserID, sig, 2000)
		return err
	})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("re-inserting the same (user, sig) should report inserted=false")
	}
}

func TestListUserItemsPaginationMonotonic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	author := itemtest.NewAuthor(t)

	timestamps := []int64{100, 200, 300}
	for _, ts := range timestamps {
		raw := itemtest.PostItem(t, ts, "body")
		it := mustParse(t, raw)
		sig := author.Sign(raw)
		err := s.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			_, err := InsertItem(ctx, tx, it, author.UserID, sig, ts)
			return err
		})
		if err != nil {
			t.Fatalf("inserting item ts=%d: %v", ts, err)
		}
	}

	refs, err := ListUserItems(ctx, s.writer, author.UserID, feed.Resolve(feed.Window{}), 100)
	if err != nil {
		t.Fatalf("ListUserItems: %v", err)
	}
	if len(refs) != 3 || refs[0].TimestampMsUTC != 300 || refs[2].TimestampMsUTC != 100 {
		t.Fatalf("unexpected order: %+v", refs)
	}

	after := int64(100)
	ascRefs, err := ListUserItems(ctx, s.writer, author.UserID, feed.Resolve(feed.Window{After: &after}), 100)
	if err != nil {
		t.Fatalf("ListUserItems after: %v", err)
	}
	if len(ascRefs) != 2 || ascRefs[0].TimestampMsUTC != 200 || ascRefs[1].TimestampMsUTC != 300 {
		t.Fatalf("unexpected ascending order: %+v", ascRefs)
	}
}

func TestLatestProfileTieBreak(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	author := itemtest.NewAuthor(t)

	raw1 := itemtest.ProfileItem(t, 1000, "Alice", nil)
	it1 := mustParse(t, raw1)
	sig1 := author.Sign(raw1)

	raw2 := itemtest.ProfileItem(t, 1000, "Alice V2", nil)
	it2 := mustParse(t, raw2)
	sig2 := author.Sign(raw2)

	insertProfile := func(it *item.Item, sig crypto.Signature) {
		err := s.WithWriteTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := InsertItem(ctx, tx, it, author.UserID, sig, it.TimestampMsUTC); err != nil {
				return err
			}
			_, err := UpsertProfileIfLatest(ctx, tx, author.UserID, sig, it.TimestampMsUTC, it.Profile.DisplayName)
			return err
		})
		if err != nil {
			t.Fatalf("inserting profile: %v", err)
		}
	}
	insertProfile(it1, sig1)
	insertProfile(it2, sig2)

	latest, err := LatestProfile(ctx, s.writer, author.UserID)
	if err != nil {
		t.Fatalf("LatestProfile: %v", err)
	}

	var wantSig crypto.Signature = sig1
	if compareBytes(sig2[:], sig1[:]) > 0 {
		wantSig = sig2
	}
	if latest.Signature != wantSig {
		t.Fatalf("LatestProfile returned wrong signature")
	}
}
