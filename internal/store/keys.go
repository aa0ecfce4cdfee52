package store

import "encoding/binary"

// Key layout. Numeric IDs are big-endian so prefix scans return records in
// ID order, which is insertion order.
const (
	prefixLine       = "line/id/"
	prefixLineName   = "line/name/"
	prefixStation    = "station/id/"
	prefixStationIdx = "station/name/"
	prefixConn       = "conn/seq/"
	prefixConnPair   = "conn/pair/"
	prefixCard       = "card/"
	prefixRide       = "ride/"
	prefixSeq        = "seq/"
)

const (
	seqLine    = "line"
	seqStation = "station"
	seqConn    = "conn"
	seqCard    = "card"
	seqRide    = "ride"
)

func idKey(prefix string, id uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], id)
	return k
}

func nameKey(prefix, name string) []byte {
	return []byte(prefix + name)
}

func pairKey(c Connection) []byte {
	k := make([]byte, len(prefixConnPair)+24)
	n := copy(k, prefixConnPair)
	binary.BigEndian.PutUint64(k[n:], c.TrainLineID)
	binary.BigEndian.PutUint64(k[n+8:], c.Station1ID)
	binary.BigEndian.PutUint64(k[n+16:], c.Station2ID)
	return k
}

// rideKey groups rides by card ID so a card's history is one prefix scan.
// The ID is fixed width, so no card's prefix can match another card's rides.
func rideKey(cardID, seq uint64) []byte {
	k := make([]byte, 0, len(prefixRide)+16)
	k = append(k, ridePrefix(cardID)...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func ridePrefix(cardID uint64) []byte {
	return idKey(prefixRide, cardID)
}

func encodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeID(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
