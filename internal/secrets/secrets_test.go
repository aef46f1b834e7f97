package secrets

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestSaveLoadRemove(t *testing.T) {
	store := New(keyring.NewArrayKeyring(nil))

	if _, err := store.Load(KeyAPIKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if err := store.Save(KeyAPIKey, "  sk-test  "); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	value, err := store.Load(KeyAPIKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if value != "sk-test" {
		t.Fatalf("Load() = %q", value)
	}
	if err := store.Remove(KeyAPIKey); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := store.Remove(KeyAPIKey); err != nil {
		t.Fatalf("Remove() twice error = %v", err)
	}
	if _, err := store.Load(KeyAPIKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() after remove error = %v", err)
	}
}

func TestSaveRejectsEmptyValue(t *testing.T) {
	store := New(keyring.NewArrayKeyring(nil))
	if err := store.Save(KeyStoreDSN, " "); err == nil {
		t.Fatal("Save() expected error")
	}
}

func TestFill(t *testing.T) {
	store := New(keyring.NewArrayKeyring([]keyring.Item{{Key: KeyStoreDSN, Data: []byte("postgres://stored")}}))

	dsn := ""
	if err := store.Fill(KeyStoreDSN, &dsn); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if dsn != "postgres://stored" {
		t.Fatalf("dsn = %q", dsn)
	}

	explicit := "postgres://env"
	if err := store.Fill(KeyStoreDSN, &explicit); err != nil || explicit != "postgres://env" {
		t.Fatalf("Fill() overwrote explicit value: %q, %v", explicit, err)
	}

	key := ""
	if err := store.Fill(KeyAPIKey, &key); err != nil || key != "" {
		t.Fatalf("Fill() missing = %q, %v", key, err)
	}
}
