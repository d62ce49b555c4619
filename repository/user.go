package repository

import (
	"fmt"
	"time"

	"github.com/goliatone/go-record-services/store"
	"github.com/uptrace/bun"
)

// UserTable is the relational table holding users.
const UserTable = "USER"

// User is a customer record. CPF and PhoneNumber hold digits only.
type User struct {
	ID          int64      `json:"id_user"`
	Name        string     `json:"name"`
	CPF         string     `json:"cpf"`
	Email       *string    `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// UserPatch updates the non nil fields of a user.
type UserPatch struct {
	Name        *string `json:"name,omitempty"`
	CPF         *string `json:"cpf,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

// Fields returns the set fields. Sanitizing happens in the repository.
func (p UserPatch) Fields() store.Fields {
	f := store.Fields{}
	if p.Name != nil {
		f["name"] = *p.Name
	}
	if p.CPF != nil {
		f["cpf"] = *p.CPF
	}
	if p.Email != nil {
		f["email"] = *p.Email
	}
	if p.PhoneNumber != nil {
		f["phone_number"] = *p.PhoneNumber
	}
	return f
}

// userRow is the table definition used to provision the USER table.
type userRow struct {
	bun.BaseModel `bun:"table:USER,alias:u"`

	ID          int64      `bun:"id_user,pk,autoincrement"`
	Name        string     `bun:"name,type:varchar(100),notnull"`
	CPF         string     `bun:"cpf,type:varchar(11),notnull,unique"`
	Email       *string    `bun:"email,type:varchar(55)"`
	PhoneNumber string     `bun:"phone_number,type:varchar(10),notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   *time.Time `bun:"updated_at"`
}

// UserSchema is the relational schema of the USER table.
var UserSchema = store.Schema{
	Name: UserTable,
	Key:  "id_user",
	Fields: map[string]string{
		"name":         "varchar(100)",
		"cpf":          "varchar(11)",
		"email":        "varchar(55)",
		"phone_number": "varchar(10)",
		CreatedAtField: "timestamp",
		UpdatedAtField: "timestamp",
	},
	Model: (*userRow)(nil),
}

// UserCollection returns the user table collection.
func UserCollection() store.Collection {
	return store.Collection{Name: UserTable}
}

// UserCodec maps users to rows.
type UserCodec struct{}

var _ Codec[User] = UserCodec{}

// Encode returns the writable columns of u. Email is left out when nil.
func (UserCodec) Encode(u User) store.Fields {
	f := store.Fields{
		"name":         u.Name,
		"cpf":          u.CPF,
		"phone_number": u.PhoneNumber,
	}
	if u.Email != nil {
		f["email"] = *u.Email
	}
	return f
}

// Decode reads a user from a row. The document id is id_user.
func (UserCodec) Decode(doc store.Document) (User, error) {
	f := doc.Fields
	u := User{
		Name:        asString(f["name"]),
		CPF:         asString(f["cpf"]),
		Email:       asOptionalString(f["email"]),
		PhoneNumber: asString(f["phone_number"]),
	}

	var err error
	if u.ID, err = asInt64(doc.ID); err != nil {
		return User{}, fmt.Errorf("id_user: %w", err)
	}
	if v, ok := f[CreatedAtField]; ok && v != nil {
		if u.CreatedAt, err = asTime(v); err != nil {
			return User{}, fmt.Errorf("created_at: %w", err)
		}
	}
	if u.UpdatedAt, err = asOptionalTime(f[UpdatedAtField]); err != nil {
		return User{}, fmt.Errorf("updated_at: %w", err)
	}
	return u, nil
}

// Sanitize keeps only the digits of cpf and phone_number.
func (UserCodec) Sanitize(fields store.Fields) store.Fields {
	for _, name := range []string{"cpf", "phone_number"} {
		if v, ok := fields[name].(string); ok {
			fields[name] = digitsOnly(v)
		}
	}
	return fields
}

// NormalizeCPF returns cpf as stored.
func NormalizeCPF(cpf string) string { return digitsOnly(cpf) }

// Timestamp truncates to microseconds, the precision both dialects keep.
func (UserCodec) Timestamp(t time.Time) any { return t.UTC().Truncate(time.Microsecond) }

// Users is the user repository.
type Users = Repository[User]

// NewUsers binds the user codec to adapter and the USER table.
func NewUsers(adapter store.Adapter) *Users {
	return New[User](adapter, UserCodec{}, UserCollection())
}
