package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// toucherMock はTouchの呼び出しを記録するモック。
type toucherMock struct {
	valid   map[string]bool
	touched []string
}

func (m *toucherMock) Touch(id string) bool {
	m.touched = append(m.touched, id)
	return m.valid[id]
}

func TestSessionCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := NewSessionCodec("test-secret")

	encoded := codec.Encode("sess-1")
	id, ok := codec.Decode(encoded)
	if !ok {
		t.Fatalf("Decode(%q) failed", encoded)
	}
	if id != "sess-1" {
		t.Errorf("id = %q, want sess-1", id)
	}
}

func TestSessionCodec_RejectsInvalidValues(t *testing.T) {
	codec := NewSessionCodec("test-secret")
	other := NewSessionCodec("another-secret")

	tests := []struct {
		name  string
		value string
	}{
		{"署名なし", "sess-1"},
		{"改竄されたID", "sess-2" + codec.Encode("sess-1")[len("sess-1"):]},
		{"別の鍵で署名", other.Encode("sess-1")},
		{"空の値", ""},
		{"IDが空", codec.Encode("sess-1")[len("sess-1"):]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if id, ok := codec.Decode(tt.value); ok {
				t.Errorf("Decode(%q) = (%q, true), want rejection", tt.value, id)
			}
		})
	}
}

func TestSessionMiddleware_ValidCookiePassesAndInjectsID(t *testing.T) {
	toucher := &toucherMock{valid: map[string]bool{"sess-1": true}}
	codec := NewSessionCodec("test-secret")

	var gotID string
	handler := NewSessionMiddleware(toucher, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := SessionIDFromContext(r.Context())
		if err != nil {
			t.Errorf("SessionIDFromContext failed: %v", err)
		}
		gotID = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName(), Value: codec.Encode("sess-1")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotID != "sess-1" {
		t.Errorf("injected session ID = %q, want sess-1", gotID)
	}
	if len(toucher.touched) != 1 || toucher.touched[0] != "sess-1" {
		t.Errorf("touched = %v, want [sess-1]", toucher.touched)
	}
}

func TestSessionMiddleware_MissingCookie(t *testing.T) {
	toucher := &toucherMock{valid: map[string]bool{}}
	codec := NewSessionCodec("test-secret")
	handler := NewSessionMiddleware(toucher, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached without a session cookie")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(toucher.touched) != 0 {
		t.Error("Touch must not be called without a cookie")
	}
}

func TestSessionMiddleware_TamperedSignatureRejected(t *testing.T) {
	toucher := &toucherMock{valid: map[string]bool{"sess-1": true}}
	codec := NewSessionCodec("test-secret")
	handler := NewSessionMiddleware(toucher, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached with a tampered cookie")
	}))

	// 有効なセッションIDでも署名がなければ通過できない
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName(), Value: "sess-1.deadbeef"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(toucher.touched) != 0 {
		t.Error("Touch must not be called for an invalid signature")
	}
}

func TestSessionMiddleware_UnknownSessionRejected(t *testing.T) {
	toucher := &toucherMock{valid: map[string]bool{}}
	codec := NewSessionCodec("test-secret")
	handler := NewSessionMiddleware(toucher, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached for an unknown session")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName(), Value: codec.Encode("expired")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_EmptyCookieValueRejected(t *testing.T) {
	toucher := &toucherMock{valid: map[string]bool{"": true}}
	codec := NewSessionCodec("test-secret")
	handler := NewSessionMiddleware(toucher, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached with an empty session ID")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName(), Value: ""})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionIDFromContext_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := SessionIDFromContext(req.Context()); err == nil {
		t.Error("SessionIDFromContext should fail on a bare context")
	}
}

func TestContextWithSessionID_RoundTrip(t *testing.T) {
	ctx := ContextWithSessionID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "sess-9")
	id, err := SessionIDFromContext(ctx)
	if err != nil {
		t.Fatalf("SessionIDFromContext failed: %v", err)
	}
	if id != "sess-9" {
		t.Errorf("id = %q, want sess-9", id)
	}
}
