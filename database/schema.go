package database

// Collection names.
const (
	Datasets        = "datasets"
	DatasetConfigs  = "dataset_configs"
	Jobs            = "jobs"
	Tasks           = "tasks"
	Pilots          = "pilots"
	Materialization = "materialization"
	Logs            = "logs"
	Users           = "users"
	Groups          = "groups"
	Sequences       = "sequences"
)

// Index is a secondary index over one or more fields.
type Index struct {
	Fields []string
	Unique bool
	// Partial unique indexes only constrain documents holding every field.
	Partial bool
}

// Schema describes a collection: its unique key field and secondary indexes.
type Schema struct {
	Name    string
	Key     string
	Indexes []Index
}

// Schemas lists every collection used by cascade.
var Schemas = []Schema{
	{Name: Datasets, Key: "dataset_id", Indexes: []Index{
		{Fields: []string{"status"}},
		{Fields: []string{"username", "status"}},
	}},
	{Name: DatasetConfigs, Key: "dataset_id"},
	{Name: Jobs, Key: "job_id", Indexes: []Index{
		{Fields: []string{"dataset_id", "job_index"}, Unique: true},
		{Fields: []string{"status", "status_changed"}},
	}},
	{Name: Tasks, Key: "task_id", Indexes: []Index{
		{Fields: []string{"dataset_id"}},
		{Fields: []string{"job_id", "task_index"}, Unique: true, Partial: true},
		{Fields: []string{"status", "priority"}},
		{Fields: []string{"status", "status_changed"}},
	}},
	{Name: Pilots, Key: "pilot_id", Indexes: []Index{
		{Fields: []string{"last_update"}},
	}},
	{Name: Materialization, Key: "materialization_id", Indexes: []Index{
		{Fields: []string{"status", "modify_timestamp"}},
		{Fields: []string{"dataset_id"}},
		// set only while a request waits, so each dataset has at most one
		{Fields: []string{"pending"}, Unique: true, Partial: true},
	}},
	{Name: Logs, Key: "log_id", Indexes: []Index{
		{Fields: []string{"dataset_id", "task_id"}},
		{Fields: []string{"timestamp"}},
	}},
	{Name: Users, Key: "username"},
	{Name: Groups, Key: "name"},
	{Name: Sequences, Key: "name"},
}

// SchemaFor returns the schema of the named collection.
func SchemaFor(name string) (Schema, bool) {
	for _, s := range Schemas {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}
