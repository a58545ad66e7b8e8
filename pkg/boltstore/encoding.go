package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/emberwake-mud/emberwake/pkg/world"
)

func init() {
	gob.Register(world.Room{})
	gob.Register(world.Thing{})
	gob.Register(world.Player{})
}

// encodeRoom serializes a Room to bytes using gob.
func encodeRoom(r *world.Room) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRoom deserializes bytes back into a Room.
func decodeRoom(data []byte) (*world.Room, error) {
	var r world.Room
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, err
	}
	if r.Exits == nil {
		r.Exits = make(map[string]world.Ref)
	}
	return &r, nil
}

// encodeThing serializes a Thing to bytes using gob.
func encodeThing(t *world.Thing) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeThing deserializes bytes back into a Thing.
func decodeThing(data []byte) (*world.Thing, error) {
	var t world.Thing
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// encodePlayer serializes a Player to bytes using gob.
func encodePlayer(p *world.Player) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePlayer deserializes bytes back into a Player.
func decodePlayer(data []byte) (*world.Player, error) {
	var p world.Player
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
