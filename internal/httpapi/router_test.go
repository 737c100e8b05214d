package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"diskuto/internal/authz"
	"diskuto/internal/config"
	"diskuto/internal/crypto"
	"diskuto/internal/ingest"
	"diskuto/internal/itemtest"
	"diskuto/internal/store"
	"diskuto/internal/store/blob"
	"diskuto/internal/store/storetest"
)

func newTestServer(t *testing.T) (*httptest.Server, *ingest.Service) {
	t.Helper()
	s := storetest.Open(t)
	cfg := config.NewConfig(t.TempDir())
	svc := &ingest.Service{
		Store:  s,
		Blobs:  blob.NewMemoryStore(),
		Policy: authz.Policy{DefaultQuotaBytes: cfg.DefaultQuotaBytes},
		Config: cfg,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(svc, log))
	t.Cleanup(srv.Close)
	return srv, svc
}

func addKnownUser(t *testing.T, svc *ingest.Service, userID crypto.UserID) {
	t.Helper()
	err := svc.Store.WithWriteTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return store.AddKnownUser(ctx, tx, store.KnownUser{UserID: userID})
	})
	if err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}
}

func doRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

// TestScenarioS1PutProfileThenGet covers the baseline flow: add a known
// user, PUT a Profile, GET it back byte-exact.
func TestScenarioS1PutProfileThenGet(t *testing.T) {
	srv, svc := newTestServer(t)
	author := itemtest.NewAuthor(t)
	addKnownUser(t, svc, author.UserID)

	raw := itemtest.ProfileItem(t, 1000, "Alice", nil)
	sig := author.Sign(raw)

	url := srv.URL + "/diskuto/users/" + author.UserID.String() + "/items/" + sig.String()
	resp := doRequest(t, http.MethodPut, url, raw)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT status = %d, want 201", resp.StatusCode)
	}

	profileURL := srv.URL + "/diskuto/users/" + author.UserID.String() + "/profile"
	resp = doRequest(t, http.MethodGet, profileURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET profile status = %d, want 200", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading profile body: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("profile bytes are not byte-exact with what was PUT")
	}
}

// TestScenarioS2TamperedSignatureRejected covers a PUT whose signature no
// longer matches its tampered body.
func TestScenarioS2TamperedSignatureRejected(t *testing.T) {
	srv, svc := newTestServer(t)
	author := itemtest.NewAuthor(t)
	addKnownUser(t, svc, author.UserID)

	raw := itemtest.PostItem(t, 1000, "hello")
	sig := author.Sign(raw)
	tampered := append([]byte{}, raw...)
	tampered[len(tampered)-1] ^= 0xff

	url := srv.URL + "/diskuto/users/" + author.UserID.String() + "/items/" + sig.String()
	resp := doRequest(t, http.MethodPut, url, tampered)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("PUT tampered status = %d, want 400", resp.StatusCode)
	}
}

// TestScenarioS3AttachmentLifecycle covers declaring an attachment via an
// item PUT, then uploading and fetching its bytes.
func TestScenarioS3AttachmentLifecycle(t *testing.T) {
	srv, svc := newTestServer(t)
	author := itemtest.NewAuthor(t)
	addKnownUser(t, svc, author.UserID)

	body := []byte("0123456789abcdef0")
	hash, err := crypto.HashStream(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	raw := itemtest.PostItemWithAttachment(t, 1000, "post", "a.jpg", int64(len(body)), hash)
	sig := author.Sign(raw)

	itemURL := srv.URL + "/diskuto/users/" + author.UserID.String() + "/items/" + sig.String()
	resp := doRequest(t, http.MethodPut, itemURL, raw)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT item status = %d, want 201", resp.StatusCode)
	}

	fileURL := itemURL + "/files/a.jpg"
	resp = doRequest(t, http.MethodGet, fileURL, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET file before upload = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, fileURL, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT file status = %d, want 201", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, fileURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET file after upload = %d, want 200", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading file body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatal("attachment bytes are not byte-exact")
	}
}

// TestScenarioS4TransitiveFollowAdmitsUnknownUser covers a user who isn't on
// the allow-list directly, but is followed by a known user's latest Profile.
func TestScenarioS4TransitiveFollowAdmitsUnknownUser(t *testing.T) {
	srv, svc := newTestServer(t)
	known := itemtest.NewAuthor(t)
	stranger := itemtest.NewAuthor(t)
	addKnownUser(t, svc, known.UserID)

	profileRaw := itemtest.ProfileItem(t, 1000, "Known", []crypto.UserID{stranger.UserID})
	profileSig := known.Sign(profileRaw)
	profileURL := srv.URL + "/diskuto/users/" + known.UserID.String() + "/items/" + profileSig.String()
	resp := doRequest(t, http.MethodPut, profileURL, profileRaw)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT profile status = %d, want 201", resp.StatusCode)
	}

	postRaw := itemtest.PostItem(t, 2000, "hi")
	postSig := stranger.Sign(postRaw)
	postURL := srv.URL + "/diskuto/users/" + stranger.UserID.String() + "/items/" + postSig.String()
	resp = doRequest(t, http.MethodPut, postURL, postRaw)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT post from transitively-followed stranger = %d, want 201", resp.StatusCode)
	}
}

// TestScenarioS5QuotaExceeded covers a known user whose quota is too small
// to admit the item they PUT.
func TestScenarioS5QuotaExceeded(t *testing.T) {
	srv, svc := newTestServer(t)
	author := itemtest.NewAuthor(t)
	quota := int64(10)
	err := svc.Store.WithWriteTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return store.AddKnownUser(ctx, tx, store.KnownUser{UserID: author.UserID, QuotaBytes: &quota})
	})
	if err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}

	raw := itemtest.PostItem(t, 1000, "this body is long enough to exceed the tiny quota")
	sig := author.Sign(raw)
	url := srv.URL + "/diskuto/users/" + author.UserID.String() + "/items/" + sig.String()
	resp := doRequest(t, http.MethodPut, url, raw)
	if resp.StatusCode != http.StatusInsufficientStorage {
		t.Fatalf("PUT over quota status = %d, want 507", resp.StatusCode)
	}
}

// TestScenarioS6PaginationOrdering covers the before/after window
// semantics on a user's item list.
func TestScenarioS6PaginationOrdering(t *testing.T) {
	srv, svc := newTestServer(t)
	author := itemtest.NewAuthor(t)
	addKnownUser(t, svc, author.UserID)

	for _, ts := range []int64{100, 200, 300} {
		raw := itemtest.PostItem(t, ts, "body")
		sig := author.Sign(raw)
		url := srv.URL + "/diskuto/users/" + author.UserID.String() + "/items/" + sig.String()
		resp := doRequest(t, http.MethodPut, url, raw)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("PUT item ts=%d status = %d, want 201", ts, resp.StatusCode)
		}
	}

	itemsURL := srv.URL + "/diskuto/users/" + author.UserID.String() + "/items"

	resp := doRequest(t, http.MethodGet, itemsURL, nil)
	refs := decodeItemList(t, resp)
	assertTimestamps(t, refs, []int64{300, 200, 100})

	resp = doRequest(t, http.MethodGet, itemsURL+"?after=100", nil)
	refs = decodeItemList(t, resp)
	assertTimestamps(t, refs, []int64{200, 300})

	resp = doRequest(t, http.MethodGet, itemsURL+"?before=300", nil)
	refs = decodeItemList(t, resp)
	assertTimestamps(t, refs, []int64{200, 100})
}

func decodeItemList(t *testing.T, resp *http.Response) []wireItemRef {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading item list body: %v", err)
	}
	var refs []wireItemRef
	if err := cbor.Unmarshal(body, &refs); err != nil {
		t.Fatalf("decoding item list: %v", err)
	}
	return refs
}

func assertTimestamps(t *testing.T, refs []wireItemRef, want []int64) {
	t.Helper()
	if len(refs) != len(want) {
		t.Fatalf("got %d refs, want %d", len(refs), len(want))
	}
	for i, w := range want {
		if refs[i].Timestamp != w {
			t.Fatalf("refs[%d].Timestamp = %d, want %d", i, refs[i].Timestamp, w)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doRequest(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}
