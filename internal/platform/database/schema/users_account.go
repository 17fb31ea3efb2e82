package schema

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table          string
	ID             string
	Email          string
	Password       string
	Roles          string
	Status         string
	Nickname       string
	FailedAttempts string
	LockoutUntil   string
	CreatedAt      string
	UpdatedAt      string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:          "users.account",
	ID:             "id",
	Email:          "email",
	Password:       "passwordhash",
	Roles:          "roles",
	Status:         "status",
	Nickname:       "nickname",
	FailedAttempts: "failedattempts",
	LockoutUntil:   "lockoutuntil",
	CreatedAt:      "createdat",
	UpdatedAt:      "updatedat",
}

// Columns returns all standard column names
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.Password, t.Roles, t.Status, t.Nickname,
		t.FailedAttempts, t.LockoutUntil, t.CreatedAt, t.UpdatedAt,
	}
}
