package postgres

import (
	"fmt"
	"strings"

	"github.com/fastygo/soup/domain"
)

// soupTable describes how one item table is read into a soup.
type soupTable struct {
	entity     domain.EntityType
	table      string
	nameExpr   string
	visibility string // SQL predicate over alias t, $1 is the requesting user
	extraCols  []string
	newItem    func() (domain.SoupItem, *domain.ItemBase, []any)
}

func ownedOrGranted(entity domain.EntityType) string {
	return fmt.Sprintf(`(t.owner_id = $1 OR EXISTS (
		SELECT 1 FROM item_access ia
		WHERE ia.user_id = $1 AND ia.entity_type = '%s' AND ia.entity_id = t.id))`, entity)
}

var soupTables = []soupTable{
	{
		entity:     domain.EntityDocument,
		table:      "documents",
		nameExpr:   "t.name",
		visibility: ownedOrGranted(domain.EntityDocument),
		extraCols:  []string{"t.file_type", "t.project_id"},
		newItem: func() (domain.SoupItem, *domain.ItemBase, []any) {
			it := &domain.DocumentItem{}
			return it, &it.ItemBase, []any{&it.FileType, &it.ProjectID}
		},
	},
	{
		entity:     domain.EntityChat,
		table:      "chats",
		nameExpr:   "t.name",
		visibility: ownedOrGranted(domain.EntityChat),
		extraCols:  []string{"t.model", "t.project_id"},
		newItem: func() (domain.SoupItem, *domain.ItemBase, []any) {
			it := &domain.ChatItem{}
			return it, &it.ItemBase, []any{&it.Model, &it.ProjectID}
		},
	},
	{
		entity:     domain.EntityProject,
		table:      "projects",
		nameExpr:   "t.name",
		visibility: ownedOrGranted(domain.EntityProject),
		extraCols:  []string{"t.parent_id"},
		newItem: func() (domain.SoupItem, *domain.ItemBase, []any) {
			it := &domain.ProjectItem{}
			return it, &it.ItemBase, []any{&it.ParentID}
		},
	},
	{
		entity:   domain.EntityChannel,
		table:    "channels",
		nameExpr: "t.name",
		visibility: `(t.owner_id = $1 OR EXISTS (
		SELECT 1 FROM channel_members cm WHERE cm.channel_id = t.id AND cm.user_id = $1))`,
		extraCols: []string{"t.channel_type"},
		newItem: func() (domain.SoupItem, *domain.ItemBase, []any) {
			it := &domain.ChannelItem{}
			return it, &it.ItemBase, []any{&it.ChannelType}
		},
	},
	{
		entity:   domain.EntityThread,
		table:    "threads",
		nameExpr: "t.subject",
		visibility: `(t.owner_id = $1 OR EXISTS (
		SELECT 1 FROM channel_members cm WHERE cm.channel_id = t.channel_id AND cm.user_id = $1))`,
		extraCols: []string{"t.channel_id", "t.message_count"},
		newItem: func() (domain.SoupItem, *domain.ItemBase, []any) {
			it := &domain.ThreadItem{}
			return it, &it.ItemBase, []any{&it.ChannelID, &it.MessageCount}
		},
	},
}

// sortExpr is the SQL expression matching SimpleSortMethod.SortKey.
func sortExpr(method domain.SimpleSortMethod) (string, error) {
	switch method {
	case domain.SortCreatedAt:
		return "t.created_at", nil
	case domain.SortUpdatedAt:
		return "t.updated_at", nil
	case domain.SortViewedAt:
		return "v.viewed_at", nil
	case domain.SortViewedUpdated:
		return "GREATEST(t.updated_at, v.viewed_at)", nil
	}
	return "", domain.NewError(domain.ErrCodeInvalid, fmt.Sprintf("unsupported sort method %q", method))
}

func (st soupTable) selectFrom(expanded bool) string {
	cols := []string{"t.id", "t.owner_id", st.nameExpr + " AS name", "t.created_at", "t.updated_at", "v.viewed_at"}
	if expanded {
		cols = append(cols, st.extraCols...)
	}
	return fmt.Sprintf(`SELECT %s
	FROM %s t
	LEFT JOIN item_views v ON v.user_id = $1 AND v.entity_type = '%s' AND v.entity_id = t.id
	WHERE t.deleted_at IS NULL
	  AND %s`, strings.Join(cols, ", "), st.table, st.entity, st.visibility)
}

// cursorQuery builds the keyset query of one table. Arguments are the user
// id, then (last_val, last_id) when hasAfter, then the row limit.
func (st soupTable) cursorQuery(method domain.SimpleSortMethod, hasAfter bool, exclude domain.SoupExclude, expanded bool) (string, error) {
	key, err := sortExpr(method)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(st.selectFrom(expanded))
	if method == domain.SortViewedAt {
		b.WriteString("\n\t  AND v.viewed_at IS NOT NULL")
	}
	if exclude.Has(domain.ExcludeTracked) {
		fmt.Fprintf(&b, `
	  AND NOT EXISTS (
		SELECT 1 FROM frecency_aggregates fa
		WHERE fa.user_id = $1 AND fa.entity_type = '%s' AND fa.entity_id = t.id)`, st.entity)
	}
	limitArg := "$2"
	if hasAfter {
		fmt.Fprintf(&b, "\n\t  AND (%s, t.id COLLATE \"C\") < ($2, $3::text COLLATE \"C\")", key)
		limitArg = "$4"
	}
	fmt.Fprintf(&b, "\n\tORDER BY %s DESC, t.id COLLATE \"C\" DESC\n\tLIMIT %s", key, limitArg)
	return b.String(), nil
}

// byIDsQuery fetches rows whose id is in $2. Order is restored by the caller.
func (st soupTable) byIDsQuery(expanded bool) string {
	return st.selectFrom(expanded) + "\n\t  AND t.id = ANY($2)"
}

// scan reads one row selected by selectFrom.
func (st soupTable) scan(row interface {
	Scan(dest ...interface{}) error
}, expanded bool) (domain.SoupItem, error) {
	var (
		item  domain.SoupItem
		base  *domain.ItemBase
		extra []any
	)
	if expanded {
		item, base, extra = st.newItem()
	} else {
		b := &domain.ItemBase{}
		item, base = b, b
	}

	dest := append([]any{
		&base.ID,
		&base.OwnerID,
		&base.Name,
		&base.CreatedAt,
		&base.UpdatedAt,
		&base.ViewedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	base.Type = st.entity
	return item, nil
}
