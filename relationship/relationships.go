// Package relationship defines the relations between mappers and stitches
// related records into fetched ones. Every relation is fetched with one
// batched select per hop, then matched in memory.
package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/mapper"
)

// Relationships is the relation registry of one native mapper.
type Relationships struct {
	native    *mapper.Mapper
	mappers   *mapper.Locator
	logger    *slog.Logger
	names     []string
	relations map[string]*Relation
}

var _ mapper.Relationships = (*Relationships)(nil)

// New returns an empty registry for the native mapper. Foreign mappers are
// looked up in mappers when a relation is first fixed.
func New(native *mapper.Mapper, mappers *mapper.Locator, logger *slog.Logger) *Relationships {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relationships{
		native:    native,
		mappers:   mappers,
		logger:    logger,
		relations: make(map[string]*Relation),
	}
}

// Set registers a relation under name.
func (rs *Relationships) Set(name string, def Definition) (*Relation, error) {
	id := rs.native.Name() + "." + name
	switch {
	case name == "":
		return nil, atlas.NewInvalidDefinitionError("relation", id, "empty relation name")
	case rs.relations[name] != nil:
		return nil, atlas.NewInvalidDefinitionError("relation", id, "relation already defined")
	case rs.native.Table().Definition().HasColumn(name):
		return nil, atlas.NewInvalidDefinitionError("relation", id, "name is a column of table %s", rs.native.Table().Name())
	case def.Foreign == "":
		return nil, atlas.NewInvalidDefinitionError("relation", id, "no foreign mapper")
	case def.Kind < OneToOne || def.Kind > ManyToMany:
		return nil, atlas.NewInvalidDefinitionError("relation", id, "unknown kind %s", def.Kind)
	}
	r := &Relation{
		native:  rs.native,
		name:    name,
		def:     def,
		mappers: rs.mappers,
		logger:  rs.logger,
	}
	if def.Kind == ManyToMany {
		through, ok := rs.relations[def.Through]
		switch {
		case def.Through == "":
			return nil, atlas.NewInvalidDefinitionError("relation", id, "many-to-many relation without through relation")
		case !ok:
			return nil, atlas.NewInvalidDefinitionError("relation", id, "unknown through relation %q", def.Through)
		case through.Kind() != OneToMany:
			return nil, atlas.NewInvalidDefinitionError("relation", id, "through relation %q is %s, not one-to-many", def.Through, through.Kind())
		}
		r.through = through
	}
	rs.names = append(rs.names, name)
	rs.relations[name] = r
	return r, nil
}

func (rs *Relationships) set(name, foreign string, kind Kind, through string, opts []Option) (*Relation, error) {
	def := Definition{Kind: kind, Foreign: foreign, Through: through}
	for _, opt := range opts {
		opt(&def)
	}
	return rs.Set(name, def)
}

// OneToOne registers a one-to-one relation.
func (rs *Relationships) OneToOne(name, foreign string, opts ...Option) (*Relation, error) {
	return rs.set(name, foreign, OneToOne, "", opts)
}

// OneToMany registers a one-to-many relation.
func (rs *Relationships) OneToMany(name, foreign string, opts ...Option) (*Relation, error) {
	return rs.set(name, foreign, OneToMany, "", opts)
}

// ManyToOne registers a many-to-one relation.
func (rs *Relationships) ManyToOne(name, foreign string, opts ...Option) (*Relation, error) {
	return rs.set(name, foreign, ManyToOne, "", opts)
}

// ManyToMany registers a many-to-many relation going through the
// registered one-to-many relation named through.
func (rs *Relationships) ManyToMany(name, foreign, through string, opts ...Option) (*Relation, error) {
	return rs.set(name, foreign, ManyToMany, through, opts)
}

// Get returns the named relation.
func (rs *Relationships) Get(name string) (*Relation, error) {
	r, ok := rs.relations[name]
	if !ok {
		return nil, atlas.NewRelationNotFoundError(rs.native.Name(), name)
	}
	return r, nil
}

// Fields returns the relation names in registration order.
func (rs *Relationships) Fields() []string {
	return slices.Clone(rs.names)
}

// StitchIntoRecord stitches the requested relations into one record.
func (rs *Relationships) StitchIntoRecord(ctx context.Context, rec *mapper.Record, with ...mapper.With) error {
	return rs.Stitch(ctx, rec, with)
}

// StitchIntoRecordSet stitches the requested relations into a set.
func (rs *Relationships) StitchIntoRecordSet(ctx context.Context, set *mapper.RecordSet, with ...mapper.With) error {
	return rs.Stitch(ctx, set, with)
}

// Stitch stitches the requested relations into the target in
// registration order. Every foreign fetch completes before any record is
// modified; on error nothing is assigned.
func (rs *Relationships) Stitch(ctx context.Context, target mapper.Stitchable, with []mapper.With) error {
	if target.MapperName() != rs.native.Name() {
		return fmt.Errorf("relationships of %s: cannot stitch into records of %s", rs.native.Name(), target.MapperName())
	}
	requested := make(map[string]mapper.With, len(with))
	for _, w := range with {
		if _, ok := rs.relations[w.Name]; !ok {
			return atlas.NewRelationNotFoundError(rs.native.Name(), w.Name)
		}
		requested[w.Name] = w
	}
	natives := target.Records()
	applies := make([]func(), 0, len(requested))
	for _, name := range rs.names {
		w, ok := requested[name]
		if !ok {
			continue
		}
		apply, err := rs.relations[name].plan(ctx, natives, w.Custom)
		if err != nil {
			return err
		}
		applies = append(applies, apply)
	}
	for _, apply := range applies {
		apply()
	}
	return nil
}
