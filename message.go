package seriallink

// MessageKind discriminates the payloads that travel through the inbound
// queue. Data lines and connection events share the same queue so the host
// observes them in the order the I/O worker produced them.
type MessageKind int

const (
	// KindData is a complete line received from the device, delimiter
	// stripped.
	KindData MessageKind = iota
	// KindConnected is emitted once each time the transport is opened
	// successfully.
	KindConnected
	// KindDisconnected is emitted once each time an established transport
	// is lost.
	KindDisconnected
)

// String returns a short lowercase name for the kind.
func (k MessageKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Message is a single entry in the inbound queue. Text is only meaningful
// for KindData; connection events carry no payload. A device is free to
// send the literal text "connected", such a line is still KindData and is
// never confused with the event of the same name.
type Message struct {
	Kind MessageKind
	Text string
}

// DataMessage wraps a received or outgoing line in a Message.
func DataMessage(text string) Message {
	return Message{Kind: KindData, Text: text}
}
