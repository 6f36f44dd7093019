package storage

// KeyType enumerates the Redis container types a `keys` row can hold.
type KeyType int

const (
	TypeNone KeyType = iota
	TypeString
	TypeHash
	TypeList
	TypeSet
	TypeZSet
	TypeStream
)

// String returns the name used by the TYPE command and in log fields.
func (t KeyType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeHash:
		return "hash"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeStream:
		return "stream"
	default:
		return "none"
	}
}

// Key mirrors one row of the `keys` table.
type Key struct {
	ID        int64
	DB        int
	Key       string
	Type      KeyType
	ExpireAt  *int64 // absolute ms epoch, nil = no TTL
	Version   int64
	CreatedAt int64
	UpdatedAt int64
}
