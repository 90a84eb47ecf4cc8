package vectorstore

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Documents are stored in Badger with the MUS binary format: compact,
// no per-record schema, fast enough to decode on every brute-force scan.
var (
	vectorSer   = ord.NewSliceSer[float32](varint.Float32)
	metadataSer = ord.NewMapSer[string, string](ord.String, ord.String)
)

func marshalDocument(d Document) []byte {
	size := ord.String.Size(d.ID) +
		ord.String.Size(d.Content) +
		metadataSer.Size(d.Metadata) +
		vectorSer.Size(d.Vector)

	bs := make([]byte, size)
	n := ord.String.Marshal(d.ID, bs)
	n += ord.String.Marshal(d.Content, bs[n:])
	n += metadataSer.Marshal(d.Metadata, bs[n:])
	vectorSer.Marshal(d.Vector, bs[n:])
	return bs
}

func unmarshalDocument(bs []byte) (Document, error) {
	var d Document

	id, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return d, err
	}
	content, m, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return d, err
	}
	n += m
	metadata, m, err := metadataSer.Unmarshal(bs[n:])
	if err != nil {
		return d, err
	}
	n += m
	vector, _, err := vectorSer.Unmarshal(bs[n:])
	if err != nil {
		return d, err
	}

	d.ID = id
	d.Content = content
	d.Metadata = metadata
	d.Vector = vector
	return d, nil
}
