package bbolt

import (
	"context"
	"slices"

	"github.com/scionproto/scion/pkg/private/serrors"
	"go.etcd.io/bbolt"

	"github.com/fancl20/trustchain/pkg/store"
)

var bucket = []byte("certificates")

type bboltStore struct {
	db *bbolt.DB
}

// New opens, or creates, the database at path.
func New(path string, opts *bbolt.Options) (store.Store, error) {
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, serrors.Wrap("opening bbolt database", err, "path", path)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &bboltStore{
		db: db,
	}, nil
}

// Load returns the blob stored under role.
func (b *bboltStore) Load(ctx context.Context, role store.Role) ([]byte, error) {
	var blob []byte
	if err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(role))
		if v == nil {
			return serrors.Wrap("loading certificate", store.ErrNotFound, "role", role)
		}
		// v is only valid for the lifetime of the transaction.
		blob = slices.Clone(v)
		return nil
	}); err != nil {
		return nil, err
	}
	return blob, nil
}

// Save stores blob under role.
func (b *bboltStore) Save(ctx context.Context, role store.Role, blob []byte) error {
	if role == "" {
		return serrors.New("empty role")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(role), append([]byte{}, blob...))
	})
}

// List returns all roles in key order.
func (b *bboltStore) List(ctx context.Context) ([]store.Role, error) {
	var roles []store.Role
	if err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			roles = append(roles, store.Role(k))
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return roles, nil
}

func (b *bboltStore) Close() error {
	return b.db.Close()
}
