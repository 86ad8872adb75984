package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestMemDBGetMissingKeyErrors(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.Error(t, err)
}

func TestSnapshotStoreLoadWithNothingSavedReturnsNil(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	store := NewSnapshotStore(db)

	data, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestSnapshotStoreSaveThenLoadRoundTrips(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	store := NewSnapshotStore(db)

	payload := []byte("snapshot-bytes")
	require.NoError(t, store.Save(payload))

	data, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

// errDB always fails Get with something other than ErrNotFound, standing
// in for a corrupted or unreachable backing store.
type errDB struct{ MemDB }

func (d *errDB) Get(key []byte) ([]byte, error) {
	return nil, errors.New("disk read failure")
}

func TestSnapshotStoreLoadPropagatesRealErrors(t *testing.T) {
	store := NewSnapshotStore(&errDB{})

	_, err := store.Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestSnapshotStoreSaveOverwritesPreviousValue(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	store := NewSnapshotStore(db)

	require.NoError(t, store.Save([]byte("first")))
	require.NoError(t, store.Save([]byte("second")))

	data, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}
