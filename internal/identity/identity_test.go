package identity

import (
	"context"
	"errors"
	"testing"
)

func TestDeriveEmail(t *testing.T) {
	tests := []struct {
		username string
		want     string
	}{
		{"mario", "mario@gestionale.hv"},
		{"Mario", "mario@gestionale.hv"},
		{"MARIO", "mario@gestionale.hv"},
	}
	for _, tt := range tests {
		got := DeriveEmail(tt.username, "gestionale.hv")
		if got != tt.want {
			t.Errorf("DeriveEmail(%q) = %q, want %q", tt.username, got, tt.want)
		}
	}
}

func newTestProvider(t *testing.T) *LocalProvider {
	t.Helper()
	return NewLocalProvider(NewMemoryAccounts())
}

func TestConn_SignIn_SetsCurrentIdentity(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.CreateAccount(context.Background(), "mario@gestionale.hv", "password"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	conn := NewConn(p)
	if conn.Current() != nil {
		t.Fatal("new Conn should start unauthenticated")
	}

	ident, err := conn.SignIn(context.Background(), "mario@gestionale.hv", "password")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if ident.Email != "mario@gestionale.hv" {
		t.Errorf("Email = %q, want mario@gestionale.hv", ident.Email)
	}
	if conn.Current() == nil || conn.Current().UID != ident.UID {
		t.Error("Current() should reflect the signed-in identity")
	}
}

func TestConn_SignIn_WrongPassword_DoesNotChangeState(t *testing.T) {
	p := newTestProvider(t)
	p.CreateAccount(context.Background(), "mario@gestionale.hv", "password")

	conn := NewConn(p)
	_, err := conn.SignIn(context.Background(), "mario@gestionale.hv", "wrong")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("SignIn error = %v, want ErrInvalidCredential", err)
	}
	if conn.Current() != nil {
		t.Error("failed SignIn must not change the connection state")
	}
}

func TestConn_SignUp_AutoSignsIn(t *testing.T) {
	p := newTestProvider(t)
	conn := NewConn(p)

	ident, err := conn.SignUp(context.Background(), "mario@gestionale.hv", "password")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	// SignUpは作成と同時にサインイン状態になる
	if conn.Current() == nil || conn.Current().UID != ident.UID {
		t.Error("SignUp should leave the connection authenticated")
	}
}

func TestConn_SignOut_ClearsIdentity(t *testing.T) {
	p := newTestProvider(t)
	conn := NewConn(p)
	conn.SignUp(context.Background(), "mario@gestionale.hv", "password")

	if err := conn.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if conn.Current() != nil {
		t.Error("Current() should be nil after SignOut")
	}

	// 未認証状態でのSignOutも安全
	if err := conn.SignOut(context.Background()); err != nil {
		t.Errorf("SignOut on unauthenticated Conn failed: %v", err)
	}
}

func TestConn_OnIdentityChange_NotifiesImmediatelyAndOnTransitions(t *testing.T) {
	p := newTestProvider(t)
	p.CreateAccount(context.Background(), "mario@gestionale.hv", "password")

	conn := NewConn(p)

	var notifications []*Identity
	unsub := conn.OnIdentityChange(func(ident *Identity) {
		notifications = append(notifications, ident)
	})
	defer unsub()

	// 登録時に現在値（nil）が即時通知される
	if len(notifications) != 1 || notifications[0] != nil {
		t.Fatalf("expected immediate nil notification, got %v", notifications)
	}

	conn.SignIn(context.Background(), "mario@gestionale.hv", "password")
	conn.SignOut(context.Background())

	if len(notifications) != 3 {
		t.Fatalf("notification count = %d, want 3", len(notifications))
	}
	if notifications[1] == nil {
		t.Error("second notification should carry the signed-in identity")
	}
	if notifications[2] != nil {
		t.Error("third notification should be nil after SignOut")
	}
}

func TestConn_OnIdentityChange_UnsubscribeStopsNotifications(t *testing.T) {
	p := newTestProvider(t)
	p.CreateAccount(context.Background(), "mario@gestionale.hv", "password")

	conn := NewConn(p)

	count := 0
	unsub := conn.OnIdentityChange(func(ident *Identity) { count++ })
	unsub()
	unsub() // 多重解除も安全

	conn.SignIn(context.Background(), "mario@gestionale.hv", "password")

	if count != 1 {
		t.Errorf("notification count = %d, want 1 (initial only)", count)
	}
}

func TestLocalProvider_Authenticate_UnknownUserAndWrongPasswordIndistinguishable(t *testing.T) {
	p := newTestProvider(t)
	p.CreateAccount(context.Background(), "mario@gestionale.hv", "password")

	_, errUnknown := p.Authenticate(context.Background(), "nobody@gestionale.hv", "password")
	_, errWrong := p.Authenticate(context.Background(), "mario@gestionale.hv", "wrong")

	if !errors.Is(errUnknown, ErrInvalidCredential) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredential", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredential) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredential", errWrong)
	}
	// 両者は同一のセンチネルエラーで区別できない
	if errUnknown.Error() != errWrong.Error() {
		t.Error("unknown-user and wrong-password must be indistinguishable")
	}
}

func TestLocalProvider_CreateAccount_RejectsWeakPassword(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.CreateAccount(context.Background(), "mario@gestionale.hv", "12345")
	if !errors.Is(err, ErrWeakPassword) {
		t.Errorf("CreateAccount error = %v, want ErrWeakPassword", err)
	}

	// 6文字ちょうどは許可される
	if _, err := p.CreateAccount(context.Background(), "mario@gestionale.hv", "123456"); err != nil {
		t.Errorf("CreateAccount with 6-char password failed: %v", err)
	}
}

func TestLocalProvider_CreateAccount_RejectsDuplicateEmail(t *testing.T) {
	p := newTestProvider(t)

	if _, err := p.CreateAccount(context.Background(), "mario@gestionale.hv", "password"); err != nil {
		t.Fatalf("first CreateAccount failed: %v", err)
	}

	_, err := p.CreateAccount(context.Background(), "mario@gestionale.hv", "different")
	if !errors.Is(err, ErrEmailInUse) {
		t.Errorf("duplicate CreateAccount error = %v, want ErrEmailInUse", err)
	}
}

func TestLocalProvider_CreateAccount_GeneratesDistinctUIDs(t *testing.T) {
	p := newTestProvider(t)

	a, err := p.CreateAccount(context.Background(), "mario@gestionale.hv", "password")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	b, err := p.CreateAccount(context.Background(), "luigi@gestionale.hv", "password")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if a.UID == "" || b.UID == "" || a.UID == b.UID {
		t.Errorf("UIDs should be non-empty and distinct, got %q and %q", a.UID, b.UID)
	}
}

func TestMemoryAccounts_FindByEmail_ReturnsCopy(t *testing.T) {
	repo := NewMemoryAccounts()
	repo.Create(context.Background(), &Account{UID: "u1", Email: "mario@gestionale.hv"})

	found, err := repo.FindByEmail(context.Background(), "mario@gestionale.hv")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	found.UID = "mutated"

	again, _ := repo.FindByEmail(context.Background(), "mario@gestionale.hv")
	if again.UID != "u1" {
		t.Error("FindByEmail should return a copy, not the stored record")
	}
}

func TestMemoryAccounts_FindByEmail_MissingReturnsNil(t *testing.T) {
	repo := NewMemoryAccounts()

	found, err := repo.FindByEmail(context.Background(), "nobody@gestionale.hv")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if found != nil {
		t.Errorf("FindByEmail = %+v, want nil for missing account", found)
	}
}
