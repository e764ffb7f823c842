package orders

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// PAID dan CANCELLED terminal: tidak ada transisi keluar.
var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}
