package store

import (
	"encoding/binary"
	"math"

	"go.etcd.io/bbolt"
)

// GeoPoint is a document's `_geo` coordinate (spec §4.4.2 Geo ranking rule,
// §4.4.3 `_geoRadius`/`_geoBoundingBox` filters). `_geo` is a reserved
// attribute: it only gets a geo_points entry when "_geo" is itself listed in
// filterableAttributes or sortableAttributes, same gate as any other facet.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// PutGeoPoint stores docid's `_geo` coordinate, overwriting any previous
// value.
func (e *Environment) PutGeoPoint(tx *bbolt.Tx, docid uint32, p GeoPoint) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(p.Lat))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(p.Lng))
	return tx.Bucket([]byte(tableGeoPoints)).Put(BEUint32(docid), buf[:])
}

// DeleteGeoPoint removes docid's stored `_geo` coordinate, if any.
func (e *Environment) DeleteGeoPoint(tx *bbolt.Tx, docid uint32) error {
	return tx.Bucket([]byte(tableGeoPoints)).Delete(BEUint32(docid))
}

// GetGeoPoint returns docid's stored `_geo` coordinate, if present.
func (e *Environment) GetGeoPoint(tx *bbolt.Tx, docid uint32) (GeoPoint, bool, error) {
	data := tx.Bucket([]byte(tableGeoPoints)).Get(BEUint32(docid))
	if data == nil {
		return GeoPoint{}, false, nil
	}
	return GeoPoint{
		Lat: math.Float64frombits(binary.BigEndian.Uint64(data[0:8])),
		Lng: math.Float64frombits(binary.BigEndian.Uint64(data[8:16])),
	}, true, nil
}

// AllGeoPoints walks every stored `_geo` coordinate (spec §4.4.2 Geo ranking
// rule: "walk an in-memory R*-tree of geo points built at index open time").
// blevesearch/geo supplies the haversine/bounding-rect math the Geo rule
// needs but not a standing tree index, so candidates are gathered here and
// sorted by the caller; see internal/query/rank/geo.go.
func (e *Environment) AllGeoPoints(tx *bbolt.Tx) (map[uint32]GeoPoint, error) {
	out := map[uint32]GeoPoint{}
	c := tx.Bucket([]byte(tableGeoPoints)).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if len(k) != 4 || len(v) != 16 {
			continue
		}
		docid := binary.BigEndian.Uint32(k)
		out[docid] = GeoPoint{
			Lat: math.Float64frombits(binary.BigEndian.Uint64(v[0:8])),
			Lng: math.Float64frombits(binary.BigEndian.Uint64(v[8:16])),
		}
	}
	return out, nil
}
