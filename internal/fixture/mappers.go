package fixture

import (
	"errors"

	"github.com/syssam/atlas/orm"
	"github.com/syssam/atlas/relationship"
)

// Mappers returns the forum mapper definitions:
//
//	Author  1-n Thread, 1-n Reply
//	Thread  n-1 Author, 1-n Reply, 1-1 Summary, n-n Tag through Tagging
//	Reply   n-1 Thread, n-1 Author
//	Summary n-1 Thread
//	Tag     n-n Thread through Tagging
func Mappers() []orm.MapperDefinition {
	return []orm.MapperDefinition{
		{
			Name:  "Author",
			Table: Authors(),
			Relationships: func(rs *relationship.Relationships) error {
				return errors.Join(
					check(rs.OneToMany("threads", "Thread")),
					check(rs.OneToMany("replies", "Reply")),
				)
			},
		},
		{
			Name:  "Thread",
			Table: Threads(),
			Relationships: func(rs *relationship.Relationships) error {
				return errors.Join(
					check(rs.ManyToOne("author", "Author")),
					check(rs.OneToMany("replies", "Reply")),
					check(rs.OneToOne("summary", "Summary")),
					check(rs.OneToMany("taggings", "Tagging")),
					check(rs.ManyToMany("tags", "Tag", "taggings")),
				)
			},
		},
		{
			Name:  "Reply",
			Table: Replies(),
			Relationships: func(rs *relationship.Relationships) error {
				return errors.Join(
					check(rs.ManyToOne("thread", "Thread")),
					check(rs.ManyToOne("author", "Author")),
				)
			},
		},
		{
			Name:  "Summary",
			Table: Summaries(),
			Relationships: func(rs *relationship.Relationships) error {
				return errors.Join(check(rs.ManyToOne("thread", "Thread")))
			},
		},
		{
			Name:  "Tag",
			Table: Tags(),
			Relationships: func(rs *relationship.Relationships) error {
				return errors.Join(
					check(rs.OneToMany("taggings", "Tagging")),
					check(rs.ManyToMany("threads", "Thread", "taggings")),
				)
			},
		},
		{
			Name:  "Tagging",
			Table: Taggings(),
			Relationships: func(rs *relationship.Relationships) error {
				return errors.Join(
					check(rs.ManyToOne("thread", "Thread")),
					check(rs.ManyToOne("tag", "Tag")),
				)
			},
		},
	}
}

func check(_ *relationship.Relation, err error) error {
	return err
}
