package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/phosphosite-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryJar struct {
	cookies []models.Cookie
	readErr error
	addErr  error
}

func (j *memoryJar) Cookies() ([]models.Cookie, error) {
	if j.readErr != nil {
		return nil, j.readErr
	}
	return j.cookies, nil
}

func (j *memoryJar) AddCookies(cookies []models.Cookie) error {
	if j.addErr != nil {
		return j.addErr
	}
	j.cookies = append(j.cookies, cookies...)
	return nil
}

func sampleCookies() []models.Cookie {
	return []models.Cookie{
		{Name: "cf_clearance", Value: "token", Domain: ".phosphosite.org", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true, SameSite: "None"},
		{Name: "JSESSIONID", Value: "abc", Domain: "www.phosphosite.org", Path: "/", Expires: -1},
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "cookies.json"), nil)

	cookies, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	s := NewStore(path, nil)

	require.NoError(t, s.Save(sampleCookies()))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCookies(), loaded)
}

func TestStoreFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	s := NewStore(path, nil)
	require.NoError(t, s.Save(sampleCookies()[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"cf_clearance","value":"token","domain":".phosphosite.org","path":"/","expires":1893456000,"httpOnly":true,"secure":true,"sameSite":"None"}]`, string(data))
}

func TestStoreSaveNilWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, NewStore(path, nil).Save(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(path, nil).Load()
	assert.Error(t, err)
}

func TestRestoreAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	s := NewStore(path, nil)

	first := &memoryJar{cookies: sampleCookies()}
	require.True(t, s.Persist(first))

	next := &memoryJar{}
	assert.Equal(t, 2, s.Restore(next))
	assert.Equal(t, sampleCookies(), next.cookies)
}

func TestRestoreIsBestEffort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	s := NewStore(path, nil)

	assert.Equal(t, 0, s.Restore(&memoryJar{}))

	require.NoError(t, s.Save(sampleCookies()))
	assert.Equal(t, 0, s.Restore(&memoryJar{addErr: errors.New("context closed")}))
}

func TestPersistIsBestEffort(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "cookies.json"), nil)
	assert.False(t, s.Persist(&memoryJar{readErr: errors.New("browser gone")}))

	dir := t.TempDir()
	blocked := NewStore(dir, nil) // a directory cannot be replaced by rename
	assert.False(t, blocked.Persist(&memoryJar{cookies: sampleCookies()}))
}
