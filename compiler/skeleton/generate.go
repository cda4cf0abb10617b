package skeleton

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"ariga.io/atlas/sql/schema"
	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/atlas/relationship"
	"github.com/syssam/atlas/table"
)

const (
	ormPkg   = "github.com/syssam/atlas/orm"
	relPkg   = "github.com/syssam/atlas/relationship"
	tablePkg = "github.com/syssam/atlas/table"
)

// Generate writes one file per mapper of s and a mappers.go returning all
// of them into cfg.Target.
func Generate(ctx context.Context, s *schema.Schema, cfg Config) error {
	if cfg.Package == "" || cfg.Target == "" {
		return fmt.Errorf("skeleton: package and target are required")
	}
	mappers, err := Build(s, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Target, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	files := make(map[string]*jen.File, len(mappers)+1)
	for _, m := range mappers {
		files[m.File()] = MapperFile(cfg.Package, m)
	}
	files["mappers.go"] = IndexFile(cfg.Package, mappers)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for name, f := range files {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return write(filepath.Join(cfg.Target, name), f)
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	cfg.logger().Info("skeleton generated", "target", cfg.Target, "mappers", len(mappers))
	return nil
}

func write(path string, f *jen.File) error {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return fmt.Errorf("format %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// MapperFile returns the file holding the definition function of m.
func MapperFile(pkg string, m *Mapper) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment(fmt.Sprintf("Generated by atlas skeleton from table %s. Edit as needed.", m.Table.Name))

	fields := jen.Dict{
		jen.Id("Name"):  jen.Lit(m.Name),
		jen.Id("Table"): tableDef(&m.Table),
	}
	if len(m.Relations) > 0 {
		fields[jen.Id("Relationships")] = relationships(m.Relations)
	}
	f.Commentf("%s returns the definition of the %s mapper over the %s table.", m.Func(), m.Name, m.Table.Name)
	f.Func().Id(m.Func()).Params().Qual(ormPkg, "MapperDefinition").Block(
		jen.Return(jen.Qual(ormPkg, "MapperDefinition").Values(fields)),
	)
	return f
}

// IndexFile returns the file with the Mappers function.
func IndexFile(pkg string, mappers []*Mapper) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment("Generated by atlas skeleton. Edit as needed.")
	calls := make([]jen.Code, len(mappers))
	for i, m := range mappers {
		calls[i] = jen.Id(m.Func()).Call()
	}
	f.Comment("Mappers returns every mapper definition of the package.")
	f.Func().Id("Mappers").Params().Index().Qual(ormPkg, "MapperDefinition").Block(
		jen.Return(jen.Index().Qual(ormPkg, "MapperDefinition").ValuesFunc(func(g *jen.Group) {
			for _, c := range calls {
				g.Line().Add(c)
			}
			if len(calls) > 0 {
				g.Line()
			}
		})),
	)
	return f
}

func tableDef(def *table.Definition) jen.Code {
	fields := jen.Dict{
		jen.Id("Name"):       jen.Lit(def.Name),
		jen.Id("PrimaryKey"): jen.Lit(def.PrimaryKey),
		jen.Id("Columns"): jen.Index().Qual(tablePkg, "Column").ValuesFunc(func(g *jen.Group) {
			for _, c := range def.Columns {
				col := jen.Dict{
					jen.Id("Name"): jen.Lit(c.Name),
					jen.Id("Type"): jen.Qual(tablePkg, typeConst(c.Type)),
				}
				if c.Nullable {
					col[jen.Id("Nullable")] = jen.True()
				}
				g.Line().Values(col)
			}
			g.Line()
		}),
	}
	if def.AutoIncrement {
		fields[jen.Id("AutoIncrement")] = jen.True()
	}
	return jen.Qual(tablePkg, "Definition").Values(fields)
}

func typeConst(t table.ColumnType) string {
	switch t {
	case table.TypeInt:
		return "TypeInt"
	case table.TypeText:
		return "TypeText"
	case table.TypeBool:
		return "TypeBool"
	case table.TypeFloat:
		return "TypeFloat"
	case table.TypeTime:
		return "TypeTime"
	case table.TypeBytes:
		return "TypeBytes"
	case table.TypeUUID:
		return "TypeUUID"
	}
	return "TypeString"
}

func relationships(rels []*Relation) jen.Code {
	return jen.Func().Params(jen.Id("rs").Op("*").Qual(relPkg, "Relationships")).Error().BlockFunc(func(g *jen.Group) {
		for _, r := range rels {
			g.If(
				jen.List(jen.Id("_"), jen.Err()).Op(":=").Id("rs").Dot(method(r.Kind)).Call(
					jen.Lit(r.Name),
					jen.Lit(r.Foreign),
					jen.Qual(relPkg, "On").Call(jen.Lit(r.NativeCol), jen.Lit(r.ForeignCol)),
				),
				jen.Err().Op("!=").Nil(),
			).Block(jen.Return(jen.Err()))
		}
		g.Return(jen.Nil())
	})
}

func method(k relationship.Kind) string {
	switch k {
	case relationship.OneToOne:
		return "OneToOne"
	case relationship.OneToMany:
		return "OneToMany"
	}
	return "ManyToOne"
}
