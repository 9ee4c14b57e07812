package model

// All returns every model managed by AutoMigrate
func All() []any {
	return []any{&User{}, &Organization{}, &Project{}, &File{}, &Preference{}}
}
