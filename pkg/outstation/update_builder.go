package outstation

import (
	"avaneesh/dnp3-outstation/pkg/types"
)

// Updates is a batch of point updates applied atomically by Database.Apply
type Updates struct {
	items []updateItem
}

type updateItem struct {
	class types.PointClass
	index uint16
	value any
	opts  updateOptions
}

// Len returns the number of updates in the batch
func (u *Updates) Len() int {
	if u == nil {
		return 0
	}
	return len(u.items)
}

// UpdateBuilder builds atomic measurement updates
type UpdateBuilder struct {
	items []updateItem
}

// NewUpdateBuilder creates a new update builder
func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{}
}

// Update queues an update of one point. Later updates of the same point in
// one batch are applied after earlier ones.
func (b *UpdateBuilder) Update(class types.PointClass, index uint16, value any, opts ...UpdateOption) *UpdateBuilder {
	o := updateOptions{mode: EventModeForce}
	for _, opt := range opts {
		opt(&o)
	}
	b.items = append(b.items, updateItem{class: class, index: index, value: value, opts: o})
	return b
}

// UpdateBinary updates a binary input point
func (b *UpdateBuilder) UpdateBinary(index uint16, value bool, opts ...UpdateOption) *UpdateBuilder {
	return b.Update(types.PointClassBinary, index, value, opts...)
}

// UpdateAnalog updates an analog input point
func (b *UpdateBuilder) UpdateAnalog(index uint16, value float64, opts ...UpdateOption) *UpdateBuilder {
	return b.Update(types.PointClassAnalog, index, value, opts...)
}

// UpdateCounter updates a counter point
func (b *UpdateBuilder) UpdateCounter(index uint16, value uint32, opts ...UpdateOption) *UpdateBuilder {
	return b.Update(types.PointClassCounter, index, value, opts...)
}

// UpdateBinaryOutputStatus updates a binary output status point
func (b *UpdateBuilder) UpdateBinaryOutputStatus(index uint16, value bool, opts ...UpdateOption) *UpdateBuilder {
	return b.Update(types.PointClassBinaryOutputStatus, index, value, opts...)
}

// UpdateAnalogOutputStatus updates an analog output status point
func (b *UpdateBuilder) UpdateAnalogOutputStatus(index uint16, value float64, opts ...UpdateOption) *UpdateBuilder {
	return b.Update(types.PointClassAnalogOutputStatus, index, value, opts...)
}

// Build returns the queued updates. The builder may be reused afterwards.
func (b *UpdateBuilder) Build() *Updates {
	u := &Updates{items: b.items}
	b.items = nil
	return u
}
