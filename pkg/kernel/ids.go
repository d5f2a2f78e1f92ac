package kernel

// UserID identifies the owner of jobs, conversations and user-scoped connectors
type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }
