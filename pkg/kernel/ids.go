package kernel

// UserID identifies a principal.
type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

// OrgID identifies an organization (tenant). Role assignments may be scoped to
// one OrgID or held globally (nil).
type OrgID string

func NewOrgID(id string) OrgID { return OrgID(id) }
func (o OrgID) String() string { return string(o) }
func (o OrgID) IsEmpty() bool  { return string(o) == "" }
