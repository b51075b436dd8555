package core

// Inbound is a decoded client message. It is one of SetUsername or Chat.
type Inbound interface {
	inbound()
}

// SetUsername completes the join handshake. An empty Room means the default room.
type SetUsername struct {
	Name string
	Room string
}

// Chat is a text message for the sender's current room.
type Chat struct {
	Text string
}

func (SetUsername) inbound() {}
func (Chat) inbound()        {}

// JoinedText is the announcement broadcast when name enters a room.
func JoinedText(name string) string { return name + " joined" }

// LeftText is the announcement broadcast when name leaves a room.
func LeftText(name string) string { return name + " left" }

// ChatText formats a chat line from name.
func ChatText(name, text string) string { return name + ": " + text }
