package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLLoader reads collection metadata from the schema tables. Refresh is
// explicit; the registry never reloads mid-request.
type SQLLoader struct {
	db *sql.DB
}

// NewSQLLoader creates a loader over the schema tables
func NewSQLLoader(db *sql.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

// LoadCollections reads every collection and its fields
func (l *SQLLoader) LoadCollections(ctx context.Context) ([]*Collection, error) {
	collections, err := l.loadCollections(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.loadFields(ctx, collections); err != nil {
		return nil, err
	}

	out := make([]*Collection, 0, len(collections))
	for _, c := range collections {
		out = append(out, c)
	}
	return out, nil
}

func (l *SQLLoader) loadCollections(ctx context.Context) (map[string]*Collection, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT collection, primary_key, status_field, soft_delete_value,
		       date_created_field, date_modified_field,
		       user_created_field, user_modified_field
		FROM directus_collections
		ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to load collections: %w", err)
	}
	defer rows.Close()

	collections := make(map[string]*Collection)
	for rows.Next() {
		var c Collection
		var primaryKey, statusField, softDeleteValue sql.NullString
		var dateCreated, dateModified, userCreated, userModified sql.NullString
		if err := rows.Scan(
			&c.Name, &primaryKey, &statusField, &softDeleteValue,
			&dateCreated, &dateModified, &userCreated, &userModified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		c.PrimaryKey = primaryKey.String
		c.StatusField = statusField.String
		c.SoftDeleteValue = softDeleteValue.String
		c.DateCreatedField = dateCreated.String
		c.DateModifiedField = dateModified.String
		c.UserCreatedField = userCreated.String
		c.UserModifiedField = userModified.String
		collections[c.Name] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load collections: %w", err)
	}
	return collections, nil
}

func (l *SQLLoader) loadFields(ctx context.Context, collections map[string]*Collection) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT collection, field, kind, interface,
		       related_collection, join_column, cardinality,
		       languages_collection, language_code_column, left_column
		FROM directus_fields
		ORDER BY collection, sort`)
	if err != nil {
		return fmt.Errorf("failed to load fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var collection, name, kind string
		var iface, related, joinColumn, cardinality sql.NullString
		var languages, languageCode, leftColumn sql.NullString
		if err := rows.Scan(
			&collection, &name, &kind, &iface,
			&related, &joinColumn, &cardinality,
			&languages, &languageCode, &leftColumn,
		); err != nil {
			return fmt.Errorf("failed to scan field: %w", err)
		}

		c, ok := collections[collection]
		if !ok {
			continue
		}

		parsed, err := ParseFieldKind(kind)
		if err != nil {
			return fmt.Errorf("collection %s field %s: %w", collection, name, err)
		}

		field := &Field{
			Name:      name,
			Kind:      parsed,
			Interface: iface.String,
		}
		if parsed == KindRelation {
			card, err := ParseCardinality(cardinality.String)
			if err != nil {
				return fmt.Errorf("collection %s field %s: %w", collection, name, err)
			}
			field.Relation = &Relation{
				Collection:          related.String,
				JoinColumn:          joinColumn.String,
				Cardinality:         card,
				LanguagesCollection: languages.String,
				LanguageCodeColumn:  languageCode.String,
				LeftColumn:          leftColumn.String,
			}
		}
		c.Fields = append(c.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load fields: %w", err)
	}
	return nil
}
