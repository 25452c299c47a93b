// internal/model/member.go
package model

// Member is the personalization source for a recipient.
type Member struct {
	ID          string `db:"id" json:"id"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	FullName    string `db:"full_name" json:"full_name"`
	Email       string `db:"email" json:"email"`
	Mobile      string `db:"mobile" json:"mobile"`
	CompanyName string `db:"company_name" json:"company_name"`
	Address     string `db:"address" json:"address"`
	Country     string `db:"country" json:"country"`
}
