package boltstore

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/emberwake-mud/emberwake/pkg/world"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database holding the persistent world: rooms,
// things, player records, and a player name index.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	// Ensure all buckets exist.
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketRooms, bucketThings, bucketPlayers, bucketNames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		b := tx.Bucket(bucketMeta)
		v := b.Get(keyFormat)
		if v == nil {
			return b.Put(keyFormat, intToKey(formatVersion))
		}
		if got := keyToInt(v); got > formatVersion {
			return fmt.Errorf("database format %d is newer than this build understands (%d)", got, formatVersion)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Seeded reports whether the store already holds a seeded world.
func (s *Store) Seeded() bool {
	var seeded bool
	s.bolt.View(func(tx *bbolt.Tx) error {
		seeded = tx.Bucket(bucketMeta).Get(keySeeded) != nil
		return nil
	})
	return seeded
}

// MarkSeeded records that the starting area has been written.
func (s *Store) MarkSeeded() error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySeeded, intToKey(1))
	})
}

// PutRoom persists a single room (write-through).
func (s *Store) PutRoom(r *world.Room) error {
	data, err := encodeRoom(r)
	if err != nil {
		return fmt.Errorf("boltstore: encode room %s: %w", r.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).Put(refToKey(r.Ref), data)
	})
}

// PutThing persists a single thing (write-through).
func (s *Store) PutThing(t *world.Thing) error {
	data, err := encodeThing(t)
	if err != nil {
		return fmt.Errorf("boltstore: encode thing %s: %w", t.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketThings).Put(refToKey(t.Ref), data)
	})
}

// PutPlayer persists a single player record and its name index entry.
func (s *Store) PutPlayer(p *world.Player) error {
	data, err := encodePlayer(p)
	if err != nil {
		return fmt.Errorf("boltstore: encode player %s: %w", p.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketPlayers).Put(refToKey(p.Ref), data); err != nil {
			return err
		}
		return tx.Bucket(bucketNames).Put([]byte(strings.ToLower(p.Name)), refToKey(p.Ref))
	})
}

// PutWorld bulk-writes an entire world in a single transaction.
// Used after the first-boot seed.
func (s *Store) PutWorld(w *world.World) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		rb := tx.Bucket(bucketRooms)
		for _, r := range w.AllRooms() {
			data, err := encodeRoom(r)
			if err != nil {
				return fmt.Errorf("encode room %s: %w", r.Ref, err)
			}
			if err := rb.Put(refToKey(r.Ref), data); err != nil {
				return err
			}
		}
		tb := tx.Bucket(bucketThings)
		for _, t := range w.AllThings() {
			data, err := encodeThing(t)
			if err != nil {
				return fmt.Errorf("encode thing %s: %w", t.Ref, err)
			}
			if err := tb.Put(refToKey(t.Ref), data); err != nil {
				return err
			}
		}
		pb := tx.Bucket(bucketPlayers)
		nb := tx.Bucket(bucketNames)
		for _, p := range w.AllPlayers() {
			data, err := encodePlayer(p)
			if err != nil {
				return fmt.Errorf("encode player %s: %w", p.Ref, err)
			}
			if err := pb.Put(refToKey(p.Ref), data); err != nil {
				return err
			}
			if err := nb.Put([]byte(strings.ToLower(p.Name)), refToKey(p.Ref)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: put world: %w", err)
	}
	rooms, things, players := w.Counts()
	log.Printf("boltstore: wrote %d rooms, %d things, %d players", rooms, things, players)
	return nil
}

// LoadWorld reads every persisted entity into the given world.
func (s *Store) LoadWorld(w *world.World) error {
	var rooms []*world.Room
	var things []*world.Thing
	var players []*world.Player

	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			r, err := decodeRoom(v)
			if err != nil {
				return fmt.Errorf("decode room: %w", err)
			}
			rooms = append(rooms, r)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketThings).ForEach(func(k, v []byte) error {
			t, err := decodeThing(v)
			if err != nil {
				return fmt.Errorf("decode thing: %w", err)
			}
			things = append(things, t)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketPlayers).ForEach(func(k, v []byte) error {
			p, err := decodePlayer(v)
			if err != nil {
				return fmt.Errorf("decode player: %w", err)
			}
			players = append(players, p)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load world: %w", err)
	}

	w.Install(rooms, things, players)
	log.Printf("boltstore: loaded %d rooms, %d things, %d players from bolt",
		len(rooms), len(things), len(players))
	return nil
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}
