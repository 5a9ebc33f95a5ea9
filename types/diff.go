package types

// StreamTransformType tags one entry of a SchemaDiff.
type StreamTransformType string

const (
	TransformAddStream    StreamTransformType = "add_stream"
	TransformRemoveStream StreamTransformType = "remove_stream"
	TransformUpdateStream StreamTransformType = "update_stream"
)

// FieldTransformType tags one field-level change inside an UPDATE_STREAM transform.
type FieldTransformType string

const (
	FieldAddField          FieldTransformType = "add_field"
	FieldRemoveField       FieldTransformType = "remove_field"
	FieldUpdateFieldSchema FieldTransformType = "update_field_schema"
)

// FieldTransform is a field-level change.
type FieldTransform struct {
	Type      FieldTransformType `json:"transform_type"`
	FieldName []string           `json:"field_name"`
	Breaking  bool               `json:"breaking,omitempty"`
}

// StreamTransform is a per-stream change. FieldTransforms is only set for TransformUpdateStream.
type StreamTransform struct {
	Type            StreamTransformType `json:"transform_type"`
	Stream          StreamDescriptor    `json:"stream_descriptor"`
	FieldTransforms []FieldTransform    `json:"field_transforms,omitempty"`
}

// AddsField reports whether the transform is an update carrying at least one ADD_FIELD.
func (t StreamTransform) AddsField() bool {
	if t.Type != TransformUpdateStream {
		return false
	}
	for _, ft := range t.FieldTransforms {
		if ft.Type == FieldAddField {
			return true
		}
	}
	return false
}

// SchemaDiff is the set of stream transforms produced by schema discovery.
// Treated as immutable once produced.
type SchemaDiff struct {
	Transforms []StreamTransform `json:"transforms"`
}

// IsEmpty reports whether the diff has no transforms.
func (d *SchemaDiff) IsEmpty() bool {
	return d == nil || len(d.Transforms) == 0
}
