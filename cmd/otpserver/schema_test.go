package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/toontownretro/otp-server/internal/config"
	"github.com/toontownretro/otp-server/internal/dbbackend/packed"
	"github.com/toontownretro/otp-server/internal/dbbackend/plaintext"
)

func TestBuildRegistryDeclaresAvatarAndAccountClasses(t *testing.T) {
	registry := buildRegistry()

	avatar, err := registry.ClassByName(avatarClassName)
	if err != nil {
		t.Fatalf("ClassByName(%q): %v", avatarClassName, err)
	}
	if avatar.FieldByName(fieldDNAString) == nil {
		t.Fatalf("avatar class missing %s", fieldDNAString)
	}
	if !avatar.FieldByName(fieldDNAString).IsRequired() {
		t.Fatalf("%s must be required", fieldDNAString)
	}

	if _, err := registry.ClassByName("DistributedAccount"); err != nil {
		t.Fatalf("ClassByName(DistributedAccount): %v", err)
	}
}

func TestBuildBackendSelectsRawByDefault(t *testing.T) {
	registry := buildRegistry()
	dir := t.TempDir()

	backend, err := buildBackend(context.Background(), config.DatabaseConfig{
		Backend:   config.DatabaseBackendRaw,
		Directory: dir,
		Extension: ".dbo",
	}, registry)
	if err != nil {
		t.Fatalf("buildBackend: %v", err)
	}
	if _, ok := backend.(*plaintext.Backend); !ok {
		t.Fatalf("backend = %T, want *plaintext.Backend", backend)
	}
}

func TestBuildBackendSelectsPacked(t *testing.T) {
	registry := buildRegistry()
	dir := filepath.Join(t.TempDir(), "packed")

	backend, err := buildBackend(context.Background(), config.DatabaseConfig{
		Backend:   config.DatabaseBackendPacked,
		Directory: dir,
		Extension: ".pdbo",
	}, registry)
	if err != nil {
		t.Fatalf("buildBackend: %v", err)
	}
	if _, ok := backend.(*packed.Backend); !ok {
		t.Fatalf("backend = %T, want *packed.Backend", backend)
	}
}

func TestBuildBackendRejectsUnknown(t *testing.T) {
	registry := buildRegistry()
	if _, err := buildBackend(context.Background(), config.DatabaseConfig{Backend: "nope"}, registry); err == nil {
		t.Fatal("expected error for unknown database-backend")
	}
}
