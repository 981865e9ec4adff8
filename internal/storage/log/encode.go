package log

import (
	"bytes"
	"encoding/gob"
	"sort"
	"time"
)

// headerPair is the serialized form of one header entry
type headerPair struct {
	Key   string
	Value []byte
}

// EncodeRecord encodes a record to bytes for storage or transport.
// The layout is keyPresent, key, value, timestamp (unix nanos), then
// headers as key-sorted pairs so encoding is deterministic.
func EncodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	keyPresent := rec.Key != nil
	if err := encoder.Encode(keyPresent); err != nil {
		return nil, err
	}
	if err := encoder.Encode(rec.Key); err != nil {
		return nil, err
	}
	if err := encoder.Encode(rec.Value); err != nil {
		return nil, err
	}
	if err := encoder.Encode(rec.Timestamp.UnixNano()); err != nil {
		return nil, err
	}

	pairs := make([]headerPair, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		pairs = append(pairs, headerPair{Key: k, Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	if err := encoder.Encode(pairs); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeRecord decodes bytes back into a record
func DecodeRecord(data []byte) (Record, error) {
	buf := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buf)

	rec := Record{}

	var keyPresent bool
	if err := decoder.Decode(&keyPresent); err != nil {
		return Record{}, err
	}
	if err := decoder.Decode(&rec.Key); err != nil {
		return Record{}, err
	}
	if !keyPresent {
		rec.Key = nil
	}
	if err := decoder.Decode(&rec.Value); err != nil {
		return Record{}, err
	}

	var nanos int64
	if err := decoder.Decode(&nanos); err != nil {
		return Record{}, err
	}
	rec.Timestamp = time.Unix(0, nanos)

	var pairs []headerPair
	if err := decoder.Decode(&pairs); err != nil {
		return Record{}, err
	}
	if len(pairs) > 0 {
		rec.Headers = make(map[string][]byte, len(pairs))
		for _, p := range pairs {
			rec.Headers[p.Key] = p.Value
		}
	}

	return rec, nil
}
