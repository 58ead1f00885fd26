package domain

import "time"

// Category is a user-defined bucket emails are classified into.
type Category struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryWithCount is a category plus the number of emails filed under it.
type CategoryWithCount struct {
	Category
	EmailCount int `json:"email_count"`
}

// DefaultCategories are seeded for accounts that have none.
var DefaultCategories = []Category{
	{Name: "Work", Description: "Work-related emails, meetings, projects, and professional communications"},
	{Name: "Personal", Description: "Personal emails from friends, family, and personal matters"},
	{Name: "Newsletters", Description: "Newsletter subscriptions, blogs, and regular publications"},
	{Name: "Promotions", Description: "Marketing emails, deals, sales, and promotional content"},
	{Name: "Social", Description: "Social media notifications and updates"},
}
