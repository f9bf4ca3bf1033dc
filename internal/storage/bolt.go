package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Compile-time proof that BoltStore satisfies the Store interface.
var _ Store = (*BoltStore)(nil)

// Bucket layout, one triple per platform:
//
//	<platform>_records  8-byte big-endian insertion id → JSON Record
//	<platform>_device   device identifier → record id
//	<platform>_ip       ip \x00 createdAt(be64) id(be64) → record id
//
// The ip bucket's key ordering makes "newest CreatedAt, then highest id"
// the last entry under an IP prefix, so retrieval never sorts.
var (
	bucketAndroidRecords = []byte("android_records")
	bucketAndroidDevice  = []byte("android_device")
	bucketAndroidIP      = []byte("android_ip")
	bucketIOSRecords     = []byte("ios_records")
	bucketIOSDevice      = []byte("ios_device")
	bucketIOSIP          = []byte("ios_ip")
)

func platformBuckets(p Platform) (records, device, ip []byte) {
	if p == IOS {
		return bucketIOSRecords, bucketIOSDevice, bucketIOSIP
	}
	return bucketAndroidRecords, bucketAndroidDevice, bucketAndroidIP
}

// BoltStore is the ACID bbolt-backed implementation of Store.
// It is safe for concurrent use.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time // overridable in tests
}

// Open opens (or creates) a bbolt database at path and initialises the
// required buckets. ttl is the record validity window.
func Open(path string, ttl time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	// Ensure buckets exist.
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketAndroidRecords, bucketAndroidDevice, bucketAndroidIP,
			bucketIOSRecords, bucketIOSDevice, bucketIOSIP,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init buckets: %w", err)
	}

	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func ipPrefix(ip string) []byte {
	return append([]byte(ip), 0)
}

func ipKey(ip string, createdAt int64, id uint64) []byte {
	key := make([]byte, 0, len(ip)+17)
	key = append(key, ip...)
	key = append(key, 0)
	key = binary.BigEndian.AppendUint64(key, uint64(createdAt))
	key = binary.BigEndian.AppendUint64(key, id)
	return key
}

func (s *BoltStore) Put(p Platform, rec Record) error {
	recName, devName, ipName := platformBuckets(p)
	err := s.db.Update(func(tx *bolt.Tx) error {
		recb, devb, ipb := tx.Bucket(recName), tx.Bucket(devName), tx.Bucket(ipName)

		// Dedup: drop the existing record for this device identifier.
		devKey := []byte(rec.DeviceID)
		if oldID := devb.Get(devKey); oldID != nil {
			if data := recb.Get(oldID); data != nil {
				var prev Record
				if err := json.Unmarshal(data, &prev); err == nil {
					if err := ipb.Delete(ipKey(prev.IP, prev.CreatedAt, binary.BigEndian.Uint64(oldID))); err != nil {
						return err
					}
				}
				if err := recb.Delete(oldID); err != nil {
					return err
				}
			}
			if err := devb.Delete(devKey); err != nil {
				return err
			}
		}

		id, err := recb.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := idKey(id)
		if err := recb.Put(key, data); err != nil {
			return err
		}
		if err := devb.Put(devKey, key); err != nil {
			return err
		}
		return ipb.Put(ipKey(rec.IP, rec.CreatedAt, id), key)
	})
	if err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s *BoltStore) Take(p Platform, ip string) (*Record, error) {
	recName, devName, ipName := platformBuckets(p)
	now := s.now()

	var rec *Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		recb, devb, ipb := tx.Bucket(recName), tx.Bucket(devName), tx.Bucket(ipName)

		// The last key under the IP prefix is the newest record (highest
		// CreatedAt, then highest insertion id).
		prefix := ipPrefix(ip)
		c := ipb.Cursor()
		var last []byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			last = k
		}
		if last == nil {
			return ErrNotFound
		}

		createdAt := int64(binary.BigEndian.Uint64(last[len(prefix):]))
		if !eligible(createdAt, s.ttl, now) {
			// The newest record is already past the window, so every older
			// one is too. They stay for the janitor to reap.
			return ErrNotFound
		}

		recKey := append([]byte{}, last[len(last)-8:]...)
		data := recb.Get(recKey)
		if data == nil {
			return ErrNotFound
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}

		if err := ipb.Delete(last); err != nil {
			return err
		}
		if err := recb.Delete(recKey); err != nil {
			return err
		}
		if cur := devb.Get([]byte(r.DeviceID)); bytes.Equal(cur, recKey) {
			if err := devb.Delete([]byte(r.DeviceID)); err != nil {
				return err
			}
		}
		rec = &r
		return nil
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: take: %w", err)
	}
	return rec, nil
}

func (s *BoltStore) Prune() (int, error) {
	now := s.now()
	pruned := 0
	for _, p := range []Platform{Android, IOS} {
		recName, devName, ipName := platformBuckets(p)
		err := s.db.Update(func(tx *bolt.Tx) error {
			recb, devb, ipb := tx.Bucket(recName), tx.Bucket(devName), tx.Bucket(ipName)

			var expired [][]byte
			c := recb.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var r Record
				if err := json.Unmarshal(v, &r); err != nil {
					expired = append(expired, append([]byte{}, k...))
					continue
				}
				if !eligible(r.CreatedAt, s.ttl, now) {
					expired = append(expired, append([]byte{}, k...))
				}
			}
			for _, k := range expired {
				var r Record
				if data := recb.Get(k); data != nil {
					if err := json.Unmarshal(data, &r); err == nil {
						if err := ipb.Delete(ipKey(r.IP, r.CreatedAt, binary.BigEndian.Uint64(k))); err != nil {
							return err
						}
						if cur := devb.Get([]byte(r.DeviceID)); bytes.Equal(cur, k) {
							if err := devb.Delete([]byte(r.DeviceID)); err != nil {
								return err
							}
						}
					}
				}
				if err := recb.Delete(k); err != nil {
					return err
				}
				pruned++
			}
			return nil
		})
		if err != nil {
			return pruned, fmt.Errorf("storage: prune %s: %w", p, err)
		}
	}
	return pruned, nil
}

func (s *BoltStore) Count(p Platform) (int, error) {
	recName, _, _ := platformBuckets(p)
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(recName).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return count, nil
}

// DBPath returns the filesystem path of the database file.
func (s *BoltStore) DBPath() string { return s.db.Path() }

// Close cleanly closes the underlying bbolt database.
func (s *BoltStore) Close() error { return s.db.Close() }
