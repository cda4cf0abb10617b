package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/mapper"
)

// Kind is the cardinality of a relation.
type Kind int

// Relation kinds.
const (
	OneToOne Kind = iota
	OneToMany
	ManyToOne
	ManyToMany
)

func (k Kind) String() string {
	switch k {
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToOne:
		return "many-to-one"
	case ManyToMany:
		return "many-to-many"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Definition configures a relation. Empty columns take the defaults of
// the kind when the relation is fixed.
type Definition struct {
	Kind Kind
	// Foreign is the name of the foreign mapper.
	Foreign string
	// NativeCol is read from native records; for many-to-many it is read
	// from the through records.
	NativeCol  string
	ForeignCol string
	// Through names the one-to-many relation a many-to-many relation
	// goes through.
	Through string
	// Custom filters every foreign select.
	Custom func(*mapper.Select)
}

// Option configures a Definition.
type Option func(*Definition)

// On sets the native and foreign columns.
func On(native, foreign string) Option {
	return func(d *Definition) {
		d.NativeCol = native
		d.ForeignCol = foreign
	}
}

// Where filters every foreign select of the relation.
func Where(fn func(*mapper.Select)) Option {
	return func(d *Definition) { d.Custom = fn }
}

// Resolved is a fixed relation: the foreign mapper and the columns that
// match native and foreign records.
type Resolved struct {
	Foreign    *mapper.Mapper
	NativeCol  string
	ForeignCol string
	// Through is the resolved through relation of a many-to-many
	// relation.
	Through *Resolved
}

// Relation is one named relation of a native mapper.
type Relation struct {
	native  *mapper.Mapper
	name    string
	def     Definition
	mappers *mapper.Locator
	through *Relation
	logger  *slog.Logger

	mu    sync.Mutex
	fixed *Resolved
}

// Name returns the relation name, which is also the name of the related
// slot it fills.
func (r *Relation) Name() string { return r.name }

// Kind returns the relation kind.
func (r *Relation) Kind() Kind { return r.def.Kind }

// Definition returns the relation definition.
func (r *Relation) Definition() Definition { return r.def }

func (r *Relation) invalid(format string, args ...any) error {
	return atlas.NewInvalidDefinitionError("relation", r.native.Name()+"."+r.name, format, args...)
}

// Fix resolves the foreign mapper and the default columns. The result is
// computed once; a failed lookup leaves the relation unfixed so a later
// call can succeed.
func (r *Relation) Fix() (*Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fixed != nil {
		return r.fixed, nil
	}
	foreign, err := r.mappers.Get(r.def.Foreign)
	if err != nil {
		return nil, fmt.Errorf("relation %s.%s: %w", r.native.Name(), r.name, err)
	}
	res := &Resolved{Foreign: foreign, NativeCol: r.def.NativeCol, ForeignCol: r.def.ForeignCol}
	source := r.native
	switch r.def.Kind {
	case OneToOne, OneToMany:
		if res.NativeCol == "" {
			res.NativeCol = r.native.Table().PrimaryKey()
		}
		if res.ForeignCol == "" {
			res.ForeignCol = res.NativeCol
		}
	case ManyToOne:
		if res.NativeCol == "" {
			res.NativeCol = foreign.Table().PrimaryKey()
		}
		if res.ForeignCol == "" {
			res.ForeignCol = foreign.Table().PrimaryKey()
		}
	case ManyToMany:
		through, err := r.through.Fix()
		if err != nil {
			return nil, err
		}
		res.Through = through
		source = through.Foreign
		if res.NativeCol == "" {
			res.NativeCol = foreign.Table().PrimaryKey()
		}
		if res.ForeignCol == "" {
			res.ForeignCol = foreign.Table().PrimaryKey()
		}
	}
	if !source.Table().Definition().HasColumn(res.NativeCol) {
		return nil, r.invalid("mapper %s has no column %q", source.Name(), res.NativeCol)
	}
	if !foreign.Table().Definition().HasColumn(res.ForeignCol) {
		return nil, r.invalid("mapper %s has no column %q", foreign.Name(), res.ForeignCol)
	}
	r.fixed = res
	return res, nil
}

// StitchIntoRecord stitches the relation into one native record.
func (r *Relation) StitchIntoRecord(ctx context.Context, rec *mapper.Record, custom func(*mapper.Select)) error {
	return r.Stitch(ctx, rec, custom)
}

// StitchIntoRecordSet stitches the relation into every record of a set.
func (r *Relation) StitchIntoRecordSet(ctx context.Context, set *mapper.RecordSet, custom func(*mapper.Select)) error {
	return r.Stitch(ctx, set, custom)
}

// Stitch fetches the foreign records of the target and assigns them to
// its related slots. Nothing is assigned when a fetch fails.
func (r *Relation) Stitch(ctx context.Context, target mapper.Stitchable, custom func(*mapper.Select)) error {
	if target.MapperName() != r.native.Name() {
		return fmt.Errorf("relation %s.%s: cannot stitch into records of %s", r.native.Name(), r.name, target.MapperName())
	}
	apply, err := r.plan(ctx, target.Records(), custom)
	if err != nil {
		return err
	}
	apply()
	return nil
}

// plan runs the foreign fetches for the natives and returns the
// assignment step.
func (r *Relation) plan(ctx context.Context, natives []*mapper.Record, custom func(*mapper.Select)) (func(), error) {
	for _, n := range natives {
		if !n.Related().Has(r.name) {
			return nil, atlas.NewRelationNotFoundError(n.MapperName(), r.name)
		}
	}
	if len(natives) == 0 {
		return func() {}, nil
	}
	res, err := r.Fix()
	if err != nil {
		return nil, err
	}
	if r.def.Kind == ManyToMany {
		return r.planThrough(ctx, natives, res, custom)
	}
	foreign, err := r.fetch(ctx, res, UniqueValues(natives, res.NativeCol), custom)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "stitch relation", "mapper", r.native.Name(), "relation", r.name, "kind", r.def.Kind, "natives", len(natives), "foreign", len(foreign))
	bs := buckets(natives, res.NativeCol, GroupRecords(foreign, res.ForeignCol))
	return func() {
		for i, n := range natives {
			r.assign(n, res.Foreign, bs[i])
		}
	}, nil
}

// planThrough plans a many-to-many relation: natives to through records,
// then through records to foreign records.
func (r *Relation) planThrough(ctx context.Context, natives []*mapper.Record, res *Resolved, custom func(*mapper.Select)) (func(), error) {
	through, err := r.through.fetch(ctx, res.Through, UniqueValues(natives, res.Through.NativeCol), nil)
	if err != nil {
		return nil, err
	}
	foreign, err := r.fetch(ctx, res, UniqueValues(through, res.NativeCol), custom)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "stitch relation", "mapper", r.native.Name(), "relation", r.name, "kind", r.def.Kind, "natives", len(natives), "through", len(through), "foreign", len(foreign))
	bs := buckets(natives, res.Through.NativeCol, GroupRecords(through, res.Through.ForeignCol))
	foreignGroups := GroupRecords(foreign, res.ForeignCol)
	return func() {
		for i, n := range natives {
			bucket := bs[i]
			if !n.Related().IsSet(r.through.name) {
				r.through.assign(n, res.Through.Foreign, bucket)
			}
			set := res.Foreign.NewRecordSet()
			for _, t := range bucket {
				v := t.Get(res.NativeCol)
				if v == nil {
					continue
				}
				if matches := foreignGroups[Key(v)]; len(matches) > 0 {
					set.Append(matches[0])
				}
			}
			_ = n.Related().Set(r.name, set)
		}
	}, nil
}

// assign sets the slot of one native record from its bucket of foreign
// records. To-one relations take the first record of the bucket.
func (r *Relation) assign(n *mapper.Record, foreign *mapper.Mapper, bucket []*mapper.Record) {
	switch r.def.Kind {
	case OneToMany, ManyToMany:
		_ = n.Related().Set(r.name, foreign.NewRecordSet(bucket...))
	default:
		if len(bucket) == 0 {
			_ = n.Related().Set(r.name, mapper.NoRecord)
			return
		}
		_ = n.Related().Set(r.name, bucket[0])
	}
}

// fetch selects the foreign records whose foreign column holds one of the
// values. No query is issued without values.
func (r *Relation) fetch(ctx context.Context, res *Resolved, values []any, custom func(*mapper.Select)) ([]*mapper.Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	var p *sql.Predicate
	if len(values) == 1 {
		p = sql.EQ(res.ForeignCol, values[0])
	} else {
		p = sql.In(res.ForeignCol, values...)
	}
	sel := res.Foreign.Select(p)
	if r.def.Custom != nil {
		r.def.Custom(sel)
	}
	if custom != nil {
		custom(sel)
	}
	set, err := sel.FetchRecordSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("relation %s.%s: %w", r.native.Name(), r.name, err)
	}
	return set.Records(), nil
}
