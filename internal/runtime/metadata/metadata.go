package metadata

// Well-known keys stamped on message envelopes.
const (
	KeySender        = "sender"
	KeyMessageType   = "message_type"
	KeyCorrelationID = "correlation_id"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

// Clone returns a shallow copy. The result is never nil.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// Merge returns a copy of m overlaid with entries. Entries win on conflict.
func (m Metadata) Merge(entries Metadata) Metadata {
	cloned := m.Clone()
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

func (m Metadata) Sender() string { return m[KeySender] }

// New constructs Metadata from alternating key/value pairs. A trailing key
// without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
