package auth

import (
	"context"
	"errors"
	"testing"
)

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Session
		wantErr bool
	}{
		{"valid", Session{UserID: "u1", Token: "tok"}, false},
		{"valid with prefs", Session{UserID: "u1", Token: "tok", Preferences: Preferences{Grade: 9, Board: "cbse"}}, false},
		{"missing user", Session{Token: "tok"}, true},
		{"missing token", Session{UserID: "u1"}, true},
		{"grade too low", Session{UserID: "u1", Token: "tok", Preferences: Preferences{Grade: 4}}, true},
		{"grade too high", Session{UserID: "u1", Token: "tok", Preferences: Preferences{Grade: 13}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := store.Put(ctx, "s1", Session{UserID: "u1"}); err == nil {
		t.Error("Put() should reject a record without a token")
	}

	want := Session{UserID: "u1", Token: "tok", Preferences: Preferences{Grade: 9, Board: "cbse"}}
	if err := store.Put(ctx, "s1", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	store.Delete(ctx, "s1")
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

type failingStore struct{ MemoryStore }

func (failingStore) Get(context.Context, string) (Session, error) {
	return Session{}, errors.New("connection reset")
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, "s1", Session{UserID: "u1", Token: "tok"})

	tests := []struct {
		name    string
		store   Store
		id      string
		wantOK  bool
		wantErr bool
	}{
		{"found", store, "s1", true, false},
		{"unknown id", store, "s2", false, false},
		{"empty id", store, "", false, false},
		{"nil store", nil, "s1", false, false},
		{"store failure", &failingStore{}, "s1", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok, err := Lookup(ctx, tt.store, tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("Lookup() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && s.UserID != "u1" {
				t.Errorf("Lookup() = %+v", s)
			}
		})
	}
}
