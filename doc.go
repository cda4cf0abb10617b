// Package atlas holds the error kinds and shared contracts of the Atlas
// data-mapper ORM.
//
// The ORM itself is split into layers, leaves first:
//
//   - connection: named read/write database handles
//   - dialect/sql: SQL builders (the query factory), driver and statistics
//   - table: table gateways with a per-table identity map
//   - mapper: Records, RecordSets and fetch builders
//   - relationship: relation definitions and batched stitching
//   - orm: the container and the Atlas facade
//
// A typical setup registers mapper definitions on a container and fetches
// through the facade:
//
//	c, err := orm.New(orm.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	if err := c.SetMappers(AuthorMapper(), ThreadMapper()); err != nil {
//	    return err
//	}
//	threads, err := c.Atlas().Select("Thread").With("author").FetchRecordSet(ctx)
package atlas
