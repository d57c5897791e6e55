package store

import (
	"encoding/json"
	stderrors "errors"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/protocol"
)

// LevelDB persists documents under keys of the form "type/uuid".
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a database in dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create hub data directory").WithDetail("dir", dir)
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open hub database").WithDetail("dir", dir)
	}
	return &LevelDB{db: db}, nil
}

func key(res protocol.Resource) []byte {
	return []byte(res.String())
}

func (l *LevelDB) Get(res protocol.Resource) (json.RawMessage, bool, error) {
	doc, err := l.db.Get(key(res), nil)
	if stderrors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "failed to read resource").WithDetail("resource", res.String())
	}
	return doc, true, nil
}

func (l *LevelDB) Put(res protocol.Resource, content json.RawMessage) error {
	if err := l.db.Put(key(res), content, nil); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write resource").WithDetail("resource", res.String())
	}
	return nil
}

func (l *LevelDB) Delete(res protocol.Resource) (bool, error) {
	ok, err := l.db.Has(key(res), nil)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to read resource").WithDetail("resource", res.String())
	}
	if !ok {
		return false, nil
	}
	if err := l.db.Delete(key(res), nil); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to delete resource").WithDetail("resource", res.String())
	}
	return true, nil
}

func (l *LevelDB) List(t protocol.ResourceType) ([]string, error) {
	prefix := []byte(string(t) + "/")
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []string
	for iter.Next() {
		out = append(out, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list resources").WithDetail("type", string(t))
	}
	return out, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
