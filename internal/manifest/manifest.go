// Package manifest is the JSON artifact a generation run produces. It holds
// the final schema model and every compiled query, in a deterministic order,
// for downstream code generators and the serve command.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/filestore"
	"github.com/koustreak/protodb/internal/generator"
	"github.com/koustreak/protodb/internal/querybuild"
	"github.com/koustreak/protodb/internal/schema"
)

// Version is the manifest format version written by Build.
const Version = 1

// ContentType is the media type manifests are stored with.
const ContentType = "application/json"

type Manifest struct {
	Version int      `json:"version"`
	Driver  string   `json:"driver"`
	Schemas []Schema `json:"schemas"`
}

type Schema struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

type Table struct {
	Schema     string `json:"schema"`
	Name       string `json:"name"`
	RecordName string `json:"record_name"`
	Extension  string `json:"extension,omitempty"`

	Columns []Column `json:"columns"`

	SelectList []string `json:"select_list"`
	InsertList []string `json:"insert_list"`
	UpdateList []string `json:"update_list"`
	PkeyList   []string `json:"pkey_list"`

	SequenceColumn string `json:"sequence_column,omitempty"`
	VersionColumn  string `json:"version_column,omitempty"`

	Indexes   []Index    `json:"indexes"`
	Relations []Relation `json:"relations"`

	Queries       []Query `json:"queries"`
	CustomQueries []Query `json:"custom_queries"`
}

type Column struct {
	Name      string  `json:"name"`
	FieldName string  `json:"field_name"`
	Ordinal   int     `json:"ordinal"`
	DataType  string  `json:"data_type"`
	TypeName  string  `json:"type_name"`
	Kind      string  `json:"kind"`
	Array     bool    `json:"array,omitempty"`
	Default   *string `json:"default,omitempty"`

	Nullable   bool `json:"nullable,omitempty"`
	PrimaryKey bool `json:"primary_key,omitempty"`
	Sequence   bool `json:"sequence,omitempty"`
	Virtual    bool `json:"virtual,omitempty"`
	Excluded   bool `json:"excluded,omitempty"`
	Version    bool `json:"version,omitempty"`

	EnumValues []string `json:"enum_values,omitempty"`

	SelectXform string `json:"select_xform,omitempty"`
	InsertXform string `json:"insert_xform,omitempty"`
	UpdateXform string `json:"update_xform,omitempty"`
}

type Index struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Columns  []string `json:"columns"`
	IsList   bool     `json:"is_list,omitempty"`
	IsLookup bool     `json:"is_lookup,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

type Relation struct {
	Constraint    string           `json:"constraint"`
	ForeignSchema string           `json:"foreign_schema"`
	ForeignTable  string           `json:"foreign_table"`
	Columns       []RelationColumn `json:"columns"`
}

type RelationColumn struct {
	Local   string `json:"local"`
	Foreign string `json:"foreign"`
}

// Query is one compiled statement. Name is the tag for canonical queries
// and the configured name for custom ones.
type Query struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Statement    string   `json:"statement"`
	SQL          string   `json:"sql"`
	NamedSQL     string   `json:"named_sql"`
	BindParams   []string `json:"bind_params"`
	OutputParams []string `json:"output_params"`
	Result       []Field  `json:"result,omitempty"`
}

type Field struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
	Kind     string `json:"kind"`
	Array    bool   `json:"array,omitempty"`
}

// Schema looks a schema up by name.
func (m *Manifest) Schema(name string) (*Schema, bool) {
	for i := range m.Schemas {
		if m.Schemas[i].Name == name {
			return &m.Schemas[i], true
		}
	}
	return nil, false
}

// Table looks a table up by name.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Query finds a canonical query by tag, then a custom query by name.
func (t *Table) Query(name string) (*Query, bool) {
	for _, list := range [][]Query{t.Queries, t.CustomQueries} {
		for i := range list {
			if list[i].Name == name {
				return &list[i], true
			}
		}
	}
	return nil, false
}

// Build converts a generation result into a manifest. Tables are sorted by
// name, canonical queries follow CREATE, READ, UPDATE, DELETE and then the
// foreign key updates by constraint, and custom queries are sorted by name.
func Build(res *generator.Result) *Manifest {
	m := &Manifest{Version: Version, Driver: string(res.Driver), Schemas: []Schema{}}
	for _, sr := range res.Schemas {
		s := Schema{Name: sr.Schema.Name, Tables: []Table{}}
		for _, name := range sr.Schema.TableNames() {
			s.Tables = append(s.Tables, buildTable(sr.Schema.Tables[name], sr.Queries[name]))
		}
		m.Schemas = append(m.Schemas, s)
	}
	return m
}

func buildTable(t *schema.Table, queries map[string]*schema.CompiledQuery) Table {
	out := Table{
		Schema:         t.Schema,
		Name:           t.Name,
		RecordName:     t.RecordName(),
		Extension:      t.Extension,
		Columns:        make([]Column, 0, len(t.Columns)),
		SelectList:     nonNil(t.SelectList),
		InsertList:     nonNil(t.InsertList),
		UpdateList:     nonNil(t.UpdateList),
		PkeyList:       nonNil(t.PkeyList),
		SequenceColumn: t.SequenceColumn,
		VersionColumn:  t.VersionColumn,
		Indexes:        []Index{},
		Relations:      []Relation{},
		Queries:        []Query{},
		CustomQueries:  []Query{},
	}

	for _, c := range t.Columns {
		col := Column{
			Name:        c.Name,
			FieldName:   c.FieldName(),
			Ordinal:     c.Ordinal,
			DataType:    c.DataType,
			TypeName:    c.TypeName,
			Kind:        string(c.Kind),
			Array:       c.Array,
			Default:     c.Default,
			Nullable:    c.Nullable,
			PrimaryKey:  c.PrimaryKey,
			Sequence:    c.Sequence,
			Virtual:     c.Virtual,
			Excluded:    c.Excluded,
			Version:     c.Version,
			SelectXform: c.SelectXform,
			InsertXform: c.InsertXform,
			UpdateXform: c.UpdateXform,
		}
		if c.Enum != nil {
			col.EnumValues = c.Enum.Values
		}
		out.Columns = append(out.Columns, col)
	}

	for _, name := range sortedKeys(t.Indexes) {
		idx := t.Indexes[name]
		out.Indexes = append(out.Indexes, Index{
			Name:     idx.Name,
			Type:     string(idx.Type),
			Columns:  nonNil(idx.Columns),
			IsList:   idx.IsList,
			IsLookup: idx.IsLookup,
			Comment:  idx.Comment,
		})
	}

	for _, rel := range t.Relations {
		r := Relation{
			Constraint:    rel.Constraint,
			ForeignSchema: rel.ForeignSchema,
			ForeignTable:  rel.ForeignTable,
		}
		for _, fc := range rel.Columns {
			r.Columns = append(r.Columns, RelationColumn{Local: fc.Local, Foreign: fc.Foreign})
		}
		out.Relations = append(out.Relations, r)
	}

	tags := sortedKeys(queries)
	sort.SliceStable(tags, func(i, j int) bool { return tagRank(tags[i]) < tagRank(tags[j]) })
	for _, tag := range tags {
		out.Queries = append(out.Queries, buildQuery(queries[tag]))
	}
	for _, name := range sortedKeys(t.CustomQueries) {
		out.CustomQueries = append(out.CustomQueries, buildQuery(t.CustomQueries[name]))
	}
	return out
}

func buildQuery(q *schema.CompiledQuery) Query {
	out := Query{
		Name:         q.Name,
		Kind:         string(q.Kind),
		Statement:    string(q.Statement),
		SQL:          q.SQL,
		NamedSQL:     q.NamedSQL,
		BindParams:   nonNil(q.BindParams),
		OutputParams: nonNil(q.OutputParams),
	}
	for _, f := range q.Result {
		out.Result = append(out.Result, Field{Name: f.Name, TypeName: f.TypeName, Kind: string(f.Kind), Array: f.Array})
	}
	return out
}

func tagRank(tag string) int {
	switch tag {
	case querybuild.TagCreate:
		return 0
	case querybuild.TagRead:
		return 1
	case querybuild.TagUpdate:
		return 2
	case querybuild.TagDelete:
		return 3
	default:
		return 4
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Encode writes m as indented JSON.
func Encode(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "encode manifest", err)
	}
	return nil
}

// Decode reads a manifest and rejects unknown format versions.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "decode manifest", err)
	}
	if m.Version != Version {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Publish encodes m and writes it to store under key.
func Publish(ctx context.Context, store filestore.Store, key string, m *Manifest) (*filestore.ObjectInfo, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return store.Put(ctx, key, &buf, int64(buf.Len()), ContentType)
}

// Load reads the manifest stored under key.
func Load(ctx context.Context, store filestore.Store, key string) (*Manifest, error) {
	obj, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return Decode(obj)
}
