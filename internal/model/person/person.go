package person

// Person is a single record of the collection. ID is assigned by the store and
// never changes; Name is opaque.
type Person struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// List is the wire shape of the full collection.
type List struct {
	List []Person `json:"list"`
}

// Seed returns the records the service starts with.
func Seed() []Person {
	return []Person{
		{ID: 0, Name: "Jim"},
		{ID: 1, Name: "Joe"},
	}
}
