package schema

import "fmt"

// ColumnKind - how the values of a column are stored in a Record
type ColumnKind int

const (
	MetricColumn ColumnKind = iota
	DateColumn
	AreaColumn
	TextColumn
)

func (k ColumnKind) String() string {
	switch k {
	case DateColumn:
		return "date"
	case AreaColumn:
		return "area"
	case TextColumn:
		return "text"
	default:
		return "metric"
	}
}

func (k ColumnKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ColumnKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "metric":
		*k = MetricColumn
	case "date":
		*k = DateColumn
	case "area":
		*k = AreaColumn
	case "text":
		*k = TextColumn
	default:
		return fmt.Errorf("unknown column kind %q", text)
	}
	return nil
}

// Source fields with a non numeric value. Every other field is a metric.
const (
	FieldDate     = "date"
	FieldAreaName = "areaName"
	FieldAreaCode = "areaCode"
	FieldAreaType = "areaType"
)

// Field - one entry of a field mapping, output column name to source field name
type Field struct {
	Name   string `mapstructure:"name" yaml:"name" json:"name"`
	Source string `mapstructure:"source" yaml:"source" json:"source"`
}

// Column - a table column in field mapping order
type Column struct {
	Name   string     `yaml:"name" json:"name" bson:"name"`
	Source string     `yaml:"source,omitempty" json:"source,omitempty" bson:"source,omitempty"`
	Kind   ColumnKind `yaml:"kind" json:"kind" bson:"kind"`
}

// KindOfSource - column kind implied by an api source field
func KindOfSource(source string) ColumnKind {
	switch source {
	case FieldDate:
		return DateColumn
	case FieldAreaName:
		return AreaColumn
	case FieldAreaCode, FieldAreaType:
		return TextColumn
	default:
		return MetricColumn
	}
}

// ColumnsFromFields - build table columns from a field mapping
func ColumnsFromFields(fields []Field) []Column {
	columns := make([]Column, len(fields))
	for i, f := range fields {
		columns[i] = Column{Name: f.Name, Source: f.Source, Kind: KindOfSource(f.Source)}
	}
	return columns
}

// Query - one ingestion request
type Query struct {
	AreaType AreaType
	Fields   []Field
	LatestBy string
}
