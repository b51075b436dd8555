package core

import (
	"sort"
	"sync"
)

// DefaultRoom is the room every client lands in unless it asks for another one.
const DefaultRoom = "general"

// ClientID identifies one connection for the lifetime of the process.
type ClientID uint64

// Outbound accepts text payloads for one client without blocking.
type Outbound interface {
	Enqueue(text string) error
}

// ClientRecord is a registered client as tracked by the Directory.
type ClientRecord struct {
	ID       ClientID
	Username string
	Room     string
	outbound Outbound
}

// RoomInfo is a point-in-time view of a room.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Directory is the authoritative table of registered clients and room membership.
// Every method runs under one mutex and never performs network I/O while holding it.
type Directory struct {
	mu          sync.Mutex
	nextID      ClientID
	defaultRoom string
	clients     map[ClientID]*ClientRecord
	rooms       map[string]map[ClientID]struct{}
}

// NewDirectory creates a directory whose default room already exists.
// An empty defaultRoom falls back to DefaultRoom.
func NewDirectory(defaultRoom string) *Directory {
	if defaultRoom == "" {
		defaultRoom = DefaultRoom
	}
	return &Directory{
		nextID:      1,
		defaultRoom: defaultRoom,
		clients:     make(map[ClientID]*ClientRecord),
		rooms: map[string]map[ClientID]struct{}{
			defaultRoom: {},
		},
	}
}

// DefaultRoom returns the name of the room created at startup.
func (d *Directory) DefaultRoom() string {
	return d.defaultRoom
}

// AllocateIdentity returns a fresh identity that has never been handed out before.
func (d *Directory) AllocateIdentity() ClientID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	return id
}

// Register creates the client record and adds id to room's members.
// An empty room means the default room. Registering an id twice leaves
// the existing record untouched and returns ErrAlreadyRegistered.
func (d *Directory) Register(id ClientID, username, room string, out Outbound) error {
	if room == "" {
		room = d.defaultRoom
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.clients[id]; exists {
		return ErrAlreadyRegistered
	}
	d.clients[id] = &ClientRecord{
		ID:       id,
		Username: username,
		Room:     room,
		outbound: out,
	}
	members, ok := d.rooms[room]
	if !ok {
		members = make(map[ClientID]struct{})
		d.rooms[room] = members
	}
	members[id] = struct{}{}
	return nil
}

// Unregister removes the record for id and its room membership.
// It returns the removed record, or false if id was not registered.
func (d *Directory) Unregister(id ClientID) (ClientRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.clients[id]
	if !ok {
		return ClientRecord{}, false
	}
	delete(d.clients, id)
	d.removeMemberLocked(rec.Room, id)
	return *rec, true
}

// Rename replaces the username of a registered client and returns the previous one.
func (d *Directory) Rename(id ClientID, username string) (previous string, room string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.clients[id]
	if !ok {
		return "", "", ErrNotRegistered
	}
	previous = rec.Username
	rec.Username = username
	return previous, rec.Room, nil
}

// Broadcast enqueues text onto the outbound queue of every current member of room
// and returns how many members accepted it. Unknown or empty rooms are a no-op.
func (d *Directory) Broadcast(room, text string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.broadcastLocked(room, text)
}

// BroadcastBatch enqueues texts in order within one critical section, so no other
// broadcast to room lands between them. It returns the deliveries of the last text.
func (d *Directory) BroadcastBatch(room string, texts ...string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	delivered := 0
	for _, text := range texts {
		delivered = d.broadcastLocked(room, text)
	}
	return delivered
}

func (d *Directory) broadcastLocked(room, text string) int {
	delivered := 0
	for id := range d.rooms[room] {
		rec, ok := d.clients[id]
		if !ok {
			continue
		}
		// A closed or overflowing relay tears itself down; nothing to do here.
		if err := rec.outbound.Enqueue(text); err != nil {
			continue
		}
		delivered++
	}
	return delivered
}

// LookupRoom returns the current room of a registered client.
func (d *Directory) LookupRoom(id ClientID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.clients[id]
	if !ok {
		return "", false
	}
	return rec.Room, true
}

// Lookup returns a copy of the client record for id.
func (d *Directory) Lookup(id ClientID) (ClientRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.clients[id]
	if !ok {
		return ClientRecord{}, false
	}
	return *rec, true
}

// Members returns the identities currently in room, in ascending order.
func (d *Directory) Members(room string) []ClientID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]ClientID, 0, len(d.rooms[room]))
	for id := range d.rooms[room] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Rooms lists every known room with its member count, sorted by name.
func (d *Directory) Rooms() []RoomInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]RoomInfo, 0, len(d.rooms))
	for name, members := range d.rooms {
		out = append(out, RoomInfo{Name: name, Members: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clients returns the number of registered clients.
func (d *Directory) Clients() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// removeMemberLocked drops id from room and forgets the room once it is empty,
// unless it is the default room.
func (d *Directory) removeMemberLocked(room string, id ClientID) {
	members, ok := d.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 && room != d.defaultRoom {
		delete(d.rooms, room)
	}
}
