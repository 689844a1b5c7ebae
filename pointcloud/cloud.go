// Package pointcloud holds the point sets registration runs on and the spatial index used to find
// correspondences in them.
package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Cloud is a set of positions with optional per-point normals. When Normals is non-nil it has the
// same length as Positions.
type Cloud struct {
	Positions []r3.Vector
	Normals   []r3.Vector
}

// NewCloud returns a cloud of the given positions and normals. normals may be nil.
func NewCloud(positions, normals []r3.Vector) (*Cloud, error) {
	if normals != nil && len(normals) != len(positions) {
		return nil, errors.Errorf("cloud has %d positions but %d normals", len(positions), len(normals))
	}
	return &Cloud{Positions: positions, Normals: normals}, nil
}

// Size returns the number of points in the cloud.
func (c *Cloud) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Positions)
}

// HasNormals reports whether the cloud carries a normal for every point.
func (c *Cloud) HasNormals() bool {
	return c != nil && c.Normals != nil && len(c.Normals) == len(c.Positions)
}

// Clone returns a deep copy of the cloud.
func (c *Cloud) Clone() *Cloud {
	if c == nil {
		return nil
	}
	ret := &Cloud{Positions: append([]r3.Vector(nil), c.Positions...)}
	if c.Normals != nil {
		ret.Normals = append([]r3.Vector(nil), c.Normals...)
	}
	return ret
}

// IndexedCloud is a cloud with normals and a built nearest-neighbour index over its positions.
// It is immutable once constructed and safe for concurrent readers.
type IndexedCloud struct {
	cloud *Cloud
	index *KDIndex
}

// NewIndexedCloud builds the spatial index for a cloud. The cloud must carry normals and must not
// be modified afterwards.
func NewIndexedCloud(cloud *Cloud) (*IndexedCloud, error) {
	if cloud == nil || !cloud.HasNormals() {
		return nil, errors.New("indexed cloud requires a normal for every point")
	}
	return &IndexedCloud{cloud: cloud, index: NewKDIndex(cloud.Positions)}, nil
}

// Size returns the number of points.
func (ic *IndexedCloud) Size() int {
	if ic == nil {
		return 0
	}
	return ic.cloud.Size()
}

// Position returns the position of point i.
func (ic *IndexedCloud) Position(i int) r3.Vector {
	return ic.cloud.Positions[i]
}

// Normal returns the normal of point i.
func (ic *IndexedCloud) Normal(i int) r3.Vector {
	return ic.cloud.Normals[i]
}

// Index returns the nearest-neighbour index over the positions.
func (ic *IndexedCloud) Index() *KDIndex {
	return ic.index
}

// Cloud returns the underlying cloud. Callers must not modify it.
func (ic *IndexedCloud) Cloud() *Cloud {
	return ic.cloud
}
