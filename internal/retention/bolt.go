package retention

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/centreon/centreon-engine-sub012/internal/downtime"
)

var (
	bucketCheckables = []byte("checkables")
	bucketComments   = []byte("comments")
	bucketDowntimes  = []byte("downtimes")
	bucketMeta       = []byte("meta")
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no retention snapshot")

type meta struct {
	Version            string    `json:"version"`
	InstanceID         string    `json:"instance_id"`
	Created            time.Time `json:"created"`
	NextEventID        uint64    `json:"next_event_id"`
	NextProblemID      uint64    `json:"next_problem_id"`
	NextNotificationID uint64    `json:"next_notification_id"`
	NextCommentID      uint64    `json:"next_comment_id"`
	NextDowntimeID     uint64    `json:"next_downtime_id"`
}

// BoltStore keeps snapshots in a bbolt database. Each save replaces the
// previous snapshot in a single transaction.
type BoltStore struct {
	db      *bolt.DB
	version *semver.Version
}

// Open opens or creates the database at path. version is the engine
// version stamped into every snapshot; Load refuses snapshots written by
// a different major version.
func Open(path, version string) (*BoltStore, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid engine version %q", version)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating retention directory")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening retention database %s", path)
	}
	return &BoltStore{db: db, version: v}, nil
}

// Close releases the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save writes snap, replacing whatever was stored before.
func (s *BoltStore) Save(snap *Snapshot) error {
	snap.Version = s.version.String()
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCheckables, bucketComments, bucketDowntimes, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return errors.Wrapf(err, "clearing bucket %s", name)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return errors.Wrapf(err, "creating bucket %s", name)
			}
		}

		cb := tx.Bucket(bucketCheckables)
		for _, st := range snap.Checkables {
			if err := putJSON(cb, []byte(st.Key), st); err != nil {
				return err
			}
		}
		mb := tx.Bucket(bucketComments)
		for _, c := range snap.Comments {
			if err := putJSON(mb, itob(c.ID), c); err != nil {
				return err
			}
		}
		dtb := tx.Bucket(bucketDowntimes)
		for _, d := range snap.Downtimes {
			if err := putJSON(dtb, itob(d.ID), d); err != nil {
				return err
			}
		}

		return putJSON(tx.Bucket(bucketMeta), []byte("snapshot"), meta{
			Version:            snap.Version,
			InstanceID:         snap.InstanceID,
			Created:            snap.Created,
			NextEventID:        snap.NextEventID,
			NextProblemID:      snap.NextProblemID,
			NextNotificationID: snap.NextNotificationID,
			NextCommentID:      snap.NextCommentID,
			NextDowntimeID:     snap.NextDowntimeID,
		})
	})
}

// Load reads the stored snapshot.
func (s *BoltStore) Load() (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		if mb == nil {
			return ErrNoSnapshot
		}
		raw := mb.Get([]byte("snapshot"))
		if raw == nil {
			return ErrNoSnapshot
		}
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return errors.Wrap(err, "decoding retention metadata")
		}
		if err := s.compatible(m.Version); err != nil {
			return err
		}
		snap.Version = m.Version
		snap.InstanceID = m.InstanceID
		snap.Created = m.Created
		snap.NextEventID = m.NextEventID
		snap.NextProblemID = m.NextProblemID
		snap.NextNotificationID = m.NextNotificationID
		snap.NextCommentID = m.NextCommentID
		snap.NextDowntimeID = m.NextDowntimeID

		if err := forEachJSON(tx.Bucket(bucketCheckables), func(raw []byte) error {
			st := &CheckableState{}
			if err := json.Unmarshal(raw, st); err != nil {
				return err
			}
			snap.Checkables = append(snap.Checkables, st)
			return nil
		}); err != nil {
			return errors.Wrap(err, "decoding checkable state")
		}
		if err := forEachJSON(tx.Bucket(bucketComments), func(raw []byte) error {
			c := &downtime.Comment{}
			if err := json.Unmarshal(raw, c); err != nil {
				return err
			}
			snap.Comments = append(snap.Comments, c)
			return nil
		}); err != nil {
			return errors.Wrap(err, "decoding comments")
		}
		if err := forEachJSON(tx.Bucket(bucketDowntimes), func(raw []byte) error {
			d := &downtime.Downtime{}
			if err := json.Unmarshal(raw, d); err != nil {
				return err
			}
			snap.Downtimes = append(snap.Downtimes, d)
			return nil
		}); err != nil {
			return errors.Wrap(err, "decoding downtimes")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *BoltStore) compatible(stored string) error {
	v, err := semver.NewVersion(stored)
	if err != nil {
		return errors.Wrapf(err, "snapshot has an invalid version %q", stored)
	}
	if v.Major() != s.version.Major() {
		return errors.Errorf("snapshot written by version %s cannot be loaded by %s", v, s.version)
	}
	return nil
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return b.Put(key, raw)
}

func forEachJSON(b *bolt.Bucket, fn func([]byte) error) error {
	if b == nil {
		return nil
	}
	return b.ForEach(func(_, v []byte) error { return fn(v) })
}

func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}
