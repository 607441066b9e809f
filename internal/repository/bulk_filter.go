package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/ems-program-api/internal/models"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
)

// Predicate is a WHERE fragment whose positional arguments start at $1.
type Predicate struct {
	Clause string
	Args   []interface{}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// BuildPredicate translates filter conditions into a predicate over table. Every field is checked
// against the table allow-list, so column names never come from user input. An empty filter list
// yields a predicate matching every row.
func BuildPredicate(table *models.TableSpec, filters []models.FilterCondition) (Predicate, error) {
	if table == nil {
		return Predicate{}, appErrors.ErrUnknownTable
	}
	conditions := make([]string, 0, len(filters))
	args := make([]interface{}, 0, len(filters))

	for _, filter := range filters {
		name := strings.TrimSpace(filter.Field)
		field, ok := table.Field(name)
		if !ok {
			return Predicate{}, appErrors.Clone(appErrors.ErrUnknownField, fmt.Sprintf("unknown field %q for table %s", name, table.Name))
		}
		op := models.FilterOperator(strings.ToLower(strings.TrimSpace(string(filter.Operator))))
		if !op.Valid() {
			return Predicate{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported operator %q", filter.Operator))
		}
		if !field.Type.Supports(op) {
			return Predicate{}, appErrors.Clone(appErrors.ErrInvalidOperatorForField,
				fmt.Sprintf("operator %s cannot be applied to %s field %s", op, field.Type, field.Name))
		}

		switch op {
		case models.FilterContains:
			args = append(args, "%"+likeEscaper.Replace(strings.ToLower(filter.Value))+"%")
			conditions = append(conditions, fmt.Sprintf("LOWER(%s) LIKE $%d", field.Name, len(args)))
		case models.FilterInList:
			items := splitList(filter.Value)
			if len(items) == 0 {
				return Predicate{}, appErrors.Clone(appErrors.ErrInvalidFilterValue, fmt.Sprintf("in_list on %s needs at least one value", field.Name))
			}
			placeholders := make([]string, len(items))
			for i, item := range items {
				value, err := coerceValue(field, item)
				if err != nil {
					return Predicate{}, err
				}
				args = append(args, value)
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", field.Name, strings.Join(placeholders, ", ")))
		default:
			value, err := coerceValue(field, filter.Value)
			if err != nil {
				return Predicate{}, err
			}
			args = append(args, value)
			conditions = append(conditions, fmt.Sprintf("%s %s $%d", field.Name, comparator(op), len(args)))
		}
	}

	if len(conditions) == 0 {
		return Predicate{Clause: "1=1"}, nil
	}
	return Predicate{Clause: strings.Join(conditions, " AND "), Args: args}, nil
}

func comparator(op models.FilterOperator) string {
	switch op {
	case models.FilterNotEquals:
		return "<>"
	case models.FilterGreaterThan:
		return ">"
	case models.FilterLessThan:
		return "<"
	default:
		return "="
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// coerceValue converts a raw filter value into the field's native type.
func coerceValue(field models.TableField, raw string) (interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	invalid := func(expected string) error {
		return appErrors.Clone(appErrors.ErrInvalidFilterValue, fmt.Sprintf("value %q for %s must be %s", raw, field.Name, expected))
	}
	switch field.Type {
	case models.FieldText:
		return raw, nil
	case models.FieldID:
		id, err := uuid.Parse(trimmed)
		if err != nil {
			return nil, invalid("a uuid")
		}
		return id.String(), nil
	case models.FieldNumber:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, invalid("a number")
		}
		return n, nil
	case models.FieldDate:
		d, err := time.Parse("2006-01-02", trimmed)
		if err != nil {
			return nil, invalid("a date (YYYY-MM-DD)")
		}
		return d, nil
	case models.FieldTimestamp:
		if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return ts, nil
		}
		d, err := time.Parse("2006-01-02", trimmed)
		if err != nil {
			return nil, invalid("an RFC3339 timestamp or YYYY-MM-DD date")
		}
		return d, nil
	case models.FieldBoolean:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, invalid("true or false")
		}
		return b, nil
	default:
		return nil, invalid("a supported value")
	}
}
