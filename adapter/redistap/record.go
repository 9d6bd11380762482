package redistap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/trickstertwo/xhub"
)

// Record is one observed hop as stored in the stream.
type Record struct {
	StreamID   string
	Hub        string
	Thread     xhub.MessageID
	Client     xhub.ClientID
	Type       string
	Author     xhub.MessengerID
	Audience   string
	Codec      string
	Payload    []byte
	ObservedAt time.Time
}

func newRecord[P any, A comparable](hub string, c *xhub.MessageClient[P, A], codec xhub.Codec, at time.Time) (Record, error) {
	data, err := codec.Marshal(c.Payload())
	if err != nil {
		return Record{}, fmt.Errorf("redistap: encode payload: %w", err)
	}
	return Record{
		Hub:        hub,
		Thread:     c.Message().ID(),
		Client:     c.ID(),
		Type:       c.Message().Type().String(),
		Author:     c.Author().ID,
		Audience:   audienceString(c),
		Codec:      codec.Name(),
		Payload:    data,
		ObservedAt: at,
	}, nil
}

func audienceString[P any, A comparable](c *xhub.MessageClient[P, A]) string {
	aud, ok := c.Audience()
	if !ok {
		return ""
	}
	if addr, ok := aud.Address(); ok {
		return fmt.Sprint(addr)
	}
	return "*"
}

// values flattens the record for XADD.
func (r Record) values() map[string]any {
	return map[string]any{
		fieldHub:        r.Hub,
		fieldThread:     r.Thread.String(),
		fieldClient:     r.Client.String(),
		fieldType:       r.Type,
		fieldAuthor:     r.Author.String(),
		fieldAudience:   r.Audience,
		fieldCodec:      r.Codec,
		fieldPayload:    r.Payload,
		fieldObservedAt: r.ObservedAt.UnixNano(),
	}
}

// DecodeRecord rebuilds a Record from the fields of a stream entry.
func DecodeRecord(id string, values map[string]any) (Record, error) {
	r := Record{
		StreamID: id,
		Hub:      str(values[fieldHub]),
		Type:     str(values[fieldType]),
		Audience: str(values[fieldAudience]),
		Codec:    str(values[fieldCodec]),
		Payload:  []byte(str(values[fieldPayload])),
	}

	thread, err := parseUint(values, fieldThread)
	if err != nil {
		return Record{}, err
	}
	client, err := parseUint(values, fieldClient)
	if err != nil {
		return Record{}, err
	}
	author, err := parseUint(values, fieldAuthor)
	if err != nil {
		return Record{}, err
	}
	ns, err := strconv.ParseInt(str(values[fieldObservedAt]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("redistap: field %s: %w", fieldObservedAt, err)
	}

	r.Thread = xhub.MessageID(thread)
	r.Client = xhub.ClientID(client)
	r.Author = xhub.MessengerID(author)
	r.ObservedAt = time.Unix(0, ns)
	return r, nil
}

// DecodePayload unmarshals a record's payload with the codec it was written with.
func DecodePayload[T any](r Record) (T, error) {
	c, err := xhub.NewCodec(r.Codec)
	if err != nil {
		var zero T
		return zero, err
	}
	return xhub.DecodeCodec[T](c, r.Payload)
}

func parseUint(values map[string]any, field string) (uint64, error) {
	n, err := strconv.ParseUint(str(values[field]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redistap: field %s: %w", field, err)
	}
	return n, nil
}

// str normalizes stream values; Redis hands everything back as strings.
func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
