package creds

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialsSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot")

	expiry := time.Now().Add(time.Hour).Round(time.Second)
	credentials := Credentials{
		Endpoint:  "db:3306",
		Principal: "Bob",
		Secret:    "Foo",
		LeaseID:   "database/creds/foo/abc",
		Expiry:    expiry,
	}
	err := credentials.Save(path)
	if err != nil {
		t.Errorf("error saving testing credentials: %v", err)
	}

	loaded, err := NewFileSource(path).Fetch(context.Background())
	if err != nil {
		t.Errorf("error reading testing credentials: %v", err)
	}

	if loaded.Principal != "Bob" || loaded.Secret != "Foo" {
		t.Errorf("did not get expected credentials, got principal: %v, secret: %v", loaded.Principal, loaded.Secret)
	}
	if loaded.Endpoint != "db:3306" || loaded.LeaseID != "database/creds/foo/abc" {
		t.Errorf("did not get expected lease metadata, got endpoint: %v, leaseID: %v", loaded.Endpoint, loaded.LeaseID)
	}
	if !loaded.Expiry.Equal(expiry) {
		t.Errorf("expiry should round-trip, got: %v want: %v", loaded.Expiry, expiry)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing")).Fetch(context.Background())
	if err == nil {
		t.Error("fetching a missing snapshot should error")
	}
}
