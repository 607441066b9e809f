package models

import "sort"

// TargetTable identifies a table bulk operations may act on.
type TargetTable string

const (
	TableStudents    TargetTable = "students"
	TableLabDays     TargetTable = "lab_days"
	TableShifts      TargetTable = "shifts"
	TableUsers       TargetTable = "users"
	TableInternships TargetTable = "internships"
)

// FieldType decides which operators and value formats a column accepts.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldID        FieldType = "id"
	FieldNumber    FieldType = "number"
	FieldDate      FieldType = "date"
	FieldTimestamp FieldType = "timestamp"
	FieldBoolean   FieldType = "boolean"
)

// Orderable reports whether greater_than/less_than apply.
func (t FieldType) Orderable() bool {
	switch t {
	case FieldNumber, FieldDate, FieldTimestamp:
		return true
	default:
		return false
	}
}

// Supports reports whether op may be applied to a field of this type.
func (t FieldType) Supports(op FilterOperator) bool {
	switch op {
	case FilterEquals, FilterNotEquals, FilterInList:
		return true
	case FilterContains:
		return t == FieldText
	case FilterGreaterThan, FilterLessThan:
		return t.Orderable()
	default:
		return false
	}
}

// TableField is an allow-listed column.
type TableField struct {
	Name string
	Type FieldType
}

// TableSpec declares how a target table may be filtered and mutated.
type TableSpec struct {
	Name TargetTable
	// PrimaryKey must also appear in Fields.
	PrimaryKey     string
	PrimaryKeyType string
	Fields         []TableField
	StatusField    string
	CohortField    string
}

// Field looks up an allow-listed column by name.
func (t *TableSpec) Field(name string) (TableField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return TableField{}, false
}

// Columns returns the allow-listed column names in declaration order.
func (t *TableSpec) Columns() []string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
	}
	return cols
}

// MutatedField returns the column an operation writes, or "" when the table does not support it.
func (t *TableSpec) MutatedField(op BulkOperationType) string {
	switch op {
	case BulkOperationUpdateStatus:
		return t.StatusField
	case BulkOperationAssignCohort:
		return t.CohortField
	default:
		return ""
	}
}

// Supports reports whether op can run against the table.
func (t *TableSpec) Supports(op BulkOperationType) bool {
	switch op {
	case BulkOperationUpdateStatus, BulkOperationAssignCohort:
		return t.MutatedField(op) != ""
	case BulkOperationDeleteRecords, BulkOperationExportRecords:
		return true
	default:
		return false
	}
}

var tableCatalog = map[TargetTable]*TableSpec{
	TableStudents: {
		Name:           TableStudents,
		PrimaryKey:     "id",
		PrimaryKeyType: "uuid",
		Fields: []TableField{
			{Name: "id", Type: FieldID},
			{Name: "first_name", Type: FieldText},
			{Name: "last_name", Type: FieldText},
			{Name: "email", Type: FieldText},
			{Name: "agency", Type: FieldText},
			{Name: "status", Type: FieldText},
			{Name: "cohort_id", Type: FieldID},
			{Name: "enrollment_date", Type: FieldDate},
			{Name: "created_at", Type: FieldTimestamp},
		},
		StatusField: "status",
		CohortField: "cohort_id",
	},
	TableLabDays: {
		Name:           TableLabDays,
		PrimaryKey:     "id",
		PrimaryKeyType: "uuid",
		Fields: []TableField{
			{Name: "id", Type: FieldID},
			{Name: "cohort_id", Type: FieldID},
			{Name: "title", Type: FieldText},
			{Name: "location", Type: FieldText},
			{Name: "date", Type: FieldDate},
			{Name: "semester", Type: FieldNumber},
			{Name: "status", Type: FieldText},
			{Name: "created_at", Type: FieldTimestamp},
		},
		StatusField: "status",
		CohortField: "cohort_id",
	},
	TableShifts: {
		Name:           TableShifts,
		PrimaryKey:     "id",
		PrimaryKeyType: "uuid",
		Fields: []TableField{
			{Name: "id", Type: FieldID},
			{Name: "student_id", Type: FieldID},
			{Name: "department", Type: FieldText},
			{Name: "site_name", Type: FieldText},
			{Name: "shift_date", Type: FieldDate},
			{Name: "hours", Type: FieldNumber},
			{Name: "status", Type: FieldText},
			{Name: "created_at", Type: FieldTimestamp},
		},
		StatusField: "status",
	},
	TableUsers: {
		Name:           TableUsers,
		PrimaryKey:     "id",
		PrimaryKeyType: "uuid",
		Fields: []TableField{
			{Name: "id", Type: FieldID},
			{Name: "email", Type: FieldText},
			{Name: "name", Type: FieldText},
			{Name: "role", Type: FieldText},
			{Name: "status", Type: FieldText},
			{Name: "created_at", Type: FieldTimestamp},
		},
		StatusField: "status",
	},
	TableInternships: {
		Name:           TableInternships,
		PrimaryKey:     "id",
		PrimaryKeyType: "uuid",
		Fields: []TableField{
			{Name: "id", Type: FieldID},
			{Name: "student_id", Type: FieldID},
			{Name: "cohort_id", Type: FieldID},
			{Name: "agency_name", Type: FieldText},
			{Name: "preceptor_name", Type: FieldText},
			{Name: "start_date", Type: FieldDate},
			{Name: "end_date", Type: FieldDate},
			{Name: "hours_completed", Type: FieldNumber},
			{Name: "status", Type: FieldText},
			{Name: "created_at", Type: FieldTimestamp},
		},
		StatusField: "status",
		CohortField: "cohort_id",
	},
}

// LookupTable returns the catalog entry for name.
func LookupTable(name TargetTable) (*TableSpec, bool) {
	spec, ok := tableCatalog[name]
	return spec, ok
}

// Tables returns every catalog entry sorted by name.
func Tables() []*TableSpec {
	specs := make([]*TableSpec, 0, len(tableCatalog))
	for _, spec := range tableCatalog {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
