package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) CompareAndSwap(_ context.Context, key, expected, next string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] != expected {
		return false, nil
	}
	f.data[key] = next
	return true, nil
}

func (f *fakeStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func keyedPost(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quota/actions/ai_summary", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func TestIdempotentRequiresHeaderWhenConfigured(t *testing.T) {
	handlerCalled := false
	handler := Idempotent(newFakeStore(), IdempotencyPolicy{Required: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost("", `{"plan_code":"basic"}`))

	assertErrorCode(t, resp, http.StatusBadRequest, pkgerrors.CodeValidation)
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotentRejectsOverlongKey(t *testing.T) {
	handler := Idempotent(newFakeStore(), IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost(strings.Repeat("k", maxIdempotencyKeyLen+1), "{}"))

	assertErrorCode(t, resp, http.StatusBadRequest, pkgerrors.CodeValidation)
}

func TestIdempotentOptionalHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), keyedPost("", "file"))
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice without a key, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored without a key")
	}
}

func TestIdempotentNilStoreIsNoop(t *testing.T) {
	calls := 0
	handler := Idempotent(nil, IdempotencyPolicy{Required: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedPost("", "{}"))
	if calls != 1 {
		t.Fatalf("expected pass-through without a store")
	}
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotent(store, IdempotencyPolicy{Required: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if _, err := io.ReadAll(r.Body); err != nil {
			t.Fatalf("read body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"remaining":4}`))
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost("abc", `{"course_id":"c-1"}`))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}
	if resp.Header().Get(replayHeader) != "" {
		t.Fatalf("first response must not be marked as a replay")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedPost("abc", `{"course_id":"c-1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get(replayHeader) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if rec.Body.String() != `{"remaining":4}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotentFingerprintsUnreadBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 2)
		_, _ = r.Body.Read(buf)
		w.WriteHeader(http.StatusAccepted)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedPost("partial", "abcdef"))

	same := httptest.NewRecorder()
	handler.ServeHTTP(same, keyedPost("partial", "abcdef"))
	if same.Code != http.StatusAccepted {
		t.Fatalf("expected replay of 202 got %d", same.Code)
	}

	changed := httptest.NewRecorder()
	handler.ServeHTTP(changed, keyedPost("partial", "abXXXX"))
	assertErrorCode(t, changed, http.StatusConflict, pkgerrors.CodeIdempotency)
}

func TestIdempotentDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedPost("xyz", "one"))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost("xyz", "two"))

	assertErrorCode(t, resp, http.StatusConflict, pkgerrors.CodeIdempotency)
}

func TestIdempotentScopesKeysPerCaller(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		req := keyedPost("shared", "{}")
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: uuid.New(), Role: enums.UserRoleStudent}))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected distinct callers to run independently, ran %d", calls)
	}
}

func TestIdempotentRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), keyedPost("k1", "same"))
	}()
	<-entered

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost("k1", "same"))
	close(release)
	<-done

	assertErrorCode(t, resp, http.StatusConflict, pkgerrors.CodeIdempotency)
}

func TestIdempotentReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), keyedPost("retry-me", "same"))
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to run the handler again, ran %d", calls)
	}
}

func TestIdempotentReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	func() {
		defer func() {
			if rv := recover(); rv != "boom" {
				t.Fatalf("expected panic to propagate, got %v", rv)
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), keyedPost("panics", "same"))
	}()

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost("panics", "same"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected retry to run the handler, got %d", resp.Code)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
}

func TestIdempotentExpiredRecordConflicts(t *testing.T) {
	store := newFakeStore()
	gone := &vanishingStore{fakeStore: store}
	handler := Idempotent(gone, IdempotencyPolicy{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run when the key is held")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, keyedPost("late", "{}"))

	assertErrorCode(t, resp, http.StatusConflict, pkgerrors.CodeConflict)
}

// vanishingStore loses every claim race and then finds nothing, as when the
// record expires between SETNX and GET.
type vanishingStore struct {
	*fakeStore
}

func (v *vanishingStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return false, nil
}

func assertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, status int, code pkgerrors.Code) {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected %d got %d", status, resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(code) {
		t.Fatalf("expected error code %s got %s", code, payload.Error.Code)
	}
}
