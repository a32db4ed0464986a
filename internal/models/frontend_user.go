package models

import "gorm.io/plugin/soft_delete"

// FrontendUser is a site visitor record carrying newsletter opt-in state.
//
// Deleted is 0 while the record is alive and holds the purge time in unix
// milliseconds afterwards, so the composite unique index only constrains live
// rows.
type FrontendUser struct {
	Base
	PID        int                   `json:"pid"         gorm:"column:pid;index;default:1"`
	Email      string                `json:"email"       gorm:"size:191;not null;uniqueIndex:idx_fe_users_email_deleted,priority:1"`
	FirstName  string                `json:"first_name"`
	LastName   string                `json:"last_name"`
	MailActive bool                  `json:"mail_active" gorm:"not null;default:false"`
	MailHTML   bool                  `json:"mail_html"   gorm:"column:mail_html;not null;default:false"`
	Usergroups []UserGroup           `json:"usergroups"  gorm:"many2many:fe_users_groups;joinForeignKey:UserID;joinReferences:GroupID"`
	Deleted    soft_delete.DeletedAt `json:"-"           gorm:"softDelete:milli;not null;default:0;uniqueIndex:idx_fe_users_email_deleted,priority:2"`
}

func (FrontendUser) TableName() string { return "fe_users" }

// IsDeleted reports whether the record has been purged.
func (u *FrontendUser) IsDeleted() bool { return u.Deleted != 0 }

// UserGroup is a frontend user group; membership keeps a record from being
// purged on unsubscribe.
type UserGroup struct {
	Base
	Title       string `json:"title"       gorm:"size:191;uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
}

func (UserGroup) TableName() string { return "fe_groups" }
